package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rl1809/gamepass-store/internal/core/domain"
)

const (
	DefaultUsersURL     = "https://users.roblox.com"
	DefaultInventoryURL = "https://inventory.roblox.com"

	maxResponseBytes = 1 << 20
)

// RobloxClient resolves usernames and checks game pass ownership.
// Each call is a single attempt; callers decide what a failure means.
type RobloxClient struct {
	http         *http.Client
	usersURL     string
	inventoryURL string
}

func NewRobloxClient(httpClient *http.Client, usersURL, inventoryURL string) *RobloxClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RobloxClient{
		http:         httpClient,
		usersURL:     strings.TrimRight(usersURL, "/"),
		inventoryURL: strings.TrimRight(inventoryURL, "/"),
	}
}

type usernamesRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

type usernamesResponse struct {
	Data []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

func (c *RobloxClient) ResolveUser(ctx context.Context, username string) (int64, error) {
	if strings.TrimSpace(username) == "" {
		return 0, domain.ErrAccountNotFound
	}

	body, err := json.Marshal(usernamesRequest{Usernames: []string{username}, ExcludeBannedUsers: true})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.usersURL+"/v1/usernames/users", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out usernamesResponse
	if err := c.do(req, &out); err != nil {
		return 0, err
	}
	if len(out.Data) == 0 || out.Data[0].ID <= 0 {
		return 0, domain.ErrAccountNotFound
	}
	return out.Data[0].ID, nil
}

type inventoryResponse struct {
	Data  []json.RawMessage `json:"data"`
	Total *int64            `json:"total"`
}

// OwnsGamePass accepts both {"data":[...]} and {"total":n} response shapes.
func (c *RobloxClient) OwnsGamePass(ctx context.Context, userID int64, gamePassID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/items/GamePass/%s",
		c.inventoryURL, strconv.FormatInt(userID, 10), url.PathEscape(gamePassID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	var out inventoryResponse
	if err := c.do(req, &out); err != nil {
		return false, err
	}
	if len(out.Data) > 0 {
		return true, nil
	}
	if out.Total != nil && *out.Total > 0 {
		return true, nil
	}
	return false, nil
}

func (c *RobloxClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrPlatformUnavailable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return fmt.Errorf("%w: %s %s: status %d", domain.ErrPlatformUnavailable, req.Method, req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrPlatformUnavailable, req.URL.Path, err)
	}
	return nil
}
