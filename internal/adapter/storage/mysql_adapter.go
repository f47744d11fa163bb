package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/gamepass-store/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

const mysqlOrderColumns = `id, username, user_id, items, total, tx, status, created_at`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CommitOrder inserts the redemption and the order in one transaction.
// The redemptions primary key decides which concurrent caller wins.
func (m *MySQLAdapter) CommitOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := m.insertRedemption(ctx, tx, order.Tx); err != nil {
		return err
	}
	if err := m.insertOrder(ctx, tx, order); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLAdapter) AppendOrder(ctx context.Context, order domain.Order) error {
	return m.insertOrder(ctx, m.db, order)
}

func (m *MySQLAdapter) insertOrder(ctx context.Context, ex sqlExecer, order domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO orders (id, username, user_id, items, total, tx, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.Username, order.UserID, items, order.Total, order.Tx,
		string(order.Status), order.CreatedAt.UTC(),
	)
	if err != nil {
		if isMySQLDuplicate(err) {
			return fmt.Errorf("insert order %s: %w", order.ID, domain.ErrAlreadyRedeemed)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+mysqlOrderColumns+` FROM orders ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
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

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+mysqlOrderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	return o, err
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	// RowsAffected is 0 when the status is unchanged, so existence is checked by re-reading.
	if _, err := m.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, string(status), id); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	return m.GetOrder(ctx, id)
}

func (m *MySQLAdapter) DeleteOrder(ctx context.Context, id string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (m *MySQLAdapter) HasBeenRedeemed(ctx context.Context, txRef string) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM redemptions WHERE tx = ?)`, txRef,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query redemption: %w", err)
	}
	return exists, nil
}

func (m *MySQLAdapter) RecordRedemption(ctx context.Context, txRef string) error {
	return m.insertRedemption(ctx, m.db, txRef)
}

func (m *MySQLAdapter) insertRedemption(ctx context.Context, ex sqlExecer, txRef string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO redemptions (tx, redeemed_at) VALUES (?, ?)`, txRef, time.Now().UTC(),
	)
	if err != nil {
		if isMySQLDuplicate(err) {
			return domain.ErrAlreadyRedeemed
		}
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

func isMySQLDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o      domain.Order
		items  []byte
		status string
	)
	err := row.Scan(&o.ID, &o.Username, &o.UserID, &items, &o.Total, &o.Tx, &status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
