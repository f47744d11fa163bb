package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultGamePasses maps a cart total in Robux to the game pass sold at that price.
var DefaultGamePasses = map[int64]string{
	50:  "1591926519",
	70:  "1593857095",
	100: "1591582593",
	200: "1594232992",
}

// Catalog is the immutable total -> game pass table.
type Catalog struct {
	passes map[int64]string
}

func NewCatalog(passes map[int64]string) (Catalog, error) {
	if len(passes) == 0 {
		return Catalog{}, fmt.Errorf("%w: empty", ErrInvalidCatalog)
	}
	cp := make(map[int64]string, len(passes))
	for total, id := range passes {
		if total <= 0 {
			return Catalog{}, fmt.Errorf("%w: total %d must be positive", ErrInvalidCatalog, total)
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return Catalog{}, fmt.Errorf("%w: empty game pass for total %d", ErrInvalidCatalog, total)
		}
		cp[total] = id
	}
	return Catalog{passes: cp}, nil
}

// ParseCatalog reads "total:gamePassID" pairs separated by commas.
func ParseCatalog(s string) (Catalog, error) {
	passes := make(map[int64]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		rawTotal, id, ok := strings.Cut(pair, ":")
		if !ok {
			return Catalog{}, fmt.Errorf("%w: malformed entry %q", ErrInvalidCatalog, pair)
		}
		total, err := strconv.ParseInt(strings.TrimSpace(rawTotal), 10, 64)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: total %q: %v", ErrInvalidCatalog, rawTotal, err)
		}
		if _, dup := passes[total]; dup {
			return Catalog{}, fmt.Errorf("%w: duplicate total %d", ErrInvalidCatalog, total)
		}
		passes[total] = id
	}
	return NewCatalog(passes)
}

// EntitlementFor returns the game pass that must be owned to justify total.
func (c Catalog) EntitlementFor(total int64) (string, bool) {
	id, ok := c.passes[total]
	return id, ok
}

// Totals lists the sellable totals in ascending order.
func (c Catalog) Totals() []int64 {
	out := make([]int64, 0, len(c.passes))
	for total := range c.passes {
		out = append(out, total)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
