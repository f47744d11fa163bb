package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/gamepass-store/internal/core/domain"
)

const pgUniqueViolation = "23505"

type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (p *PostgresAdapter) CommitOrder(ctx context.Context, order domain.Order) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := p.insertRedemption(ctx, tx, order.Tx); err != nil {
		return err
	}
	if err := p.insertOrder(ctx, tx, order); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) AppendOrder(ctx context.Context, order domain.Order) error {
	return p.insertOrder(ctx, p.pool, order)
}

func (p *PostgresAdapter) insertOrder(ctx context.Context, ex pgExecer, order domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	_, err = ex.Exec(ctx, `
		INSERT INTO orders (id, username, user_id, items, total, tx, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		order.ID, order.Username, order.UserID, string(items), order.Total, order.Tx,
		string(order.Status), order.CreatedAt.UTC(),
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("insert order %s: %w", order.ID, domain.ErrAlreadyRedeemed)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, username, user_id, items, total, tx, status, created_at
		FROM orders ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanPgOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func (p *PostgresAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, username, user_id, items, total, tx, status, created_at
		FROM orders WHERE id = $1`, id)
	o, err := scanPgOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	return o, err
}

func (p *PostgresAdapter) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	ct, err := p.pool.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, domain.ErrOrderNotFound
	}
	return p.GetOrder(ctx, id)
}

func (p *PostgresAdapter) DeleteOrder(ctx context.Context, id string) error {
	ct, err := p.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (p *PostgresAdapter) HasBeenRedeemed(ctx context.Context, txRef string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM redemptions WHERE tx = $1)`, txRef,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query redemption: %w", err)
	}
	return exists, nil
}

func (p *PostgresAdapter) RecordRedemption(ctx context.Context, txRef string) error {
	return p.insertRedemption(ctx, p.pool, txRef)
}

func (p *PostgresAdapter) insertRedemption(ctx context.Context, ex pgExecer, txRef string) error {
	_, err := ex.Exec(ctx,
		`INSERT INTO redemptions (tx, redeemed_at) VALUES ($1, $2)`, txRef, time.Now().UTC(),
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.ErrAlreadyRedeemed
		}
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func scanPgOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o      domain.Order
		items  []byte
		status string
	)
	if err := row.Scan(&o.ID, &o.Username, &o.UserID, &items, &o.Total, &o.Tx, &status, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items of %s: %w", o.ID, err)
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = o.CreatedAt.UTC()
	return &o, nil
}
