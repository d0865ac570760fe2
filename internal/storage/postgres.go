package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/solvex/mev-shield/internal/order"
	"go.uber.org/zap"
)

// PostgresStore implements OrderStore using PostgreSQL. Schema lives in
// schema.sql alongside this file.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL-backed order store.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStore{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// newPostgresStoreWithDB wires an existing connection, used by tests.
func newPostgresStoreWithDB(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

const orderColumns = `id, user_id, market, side, kind, price, quantity, commit_hash,
		reveal_deadline, revealed, protection_level, encrypted_payload,
		time_lock_until, batch_id, priority, status, created_at`

// InsertOrder durably records a new protected order.
func (p *PostgresStore) InsertOrder(ctx context.Context, o *order.ProtectedOrder) error {
	query := `
		INSERT INTO protected_orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := p.db.ExecContext(ctx, query,
		o.ID, o.UserID, o.Market, string(o.Side), string(o.Kind),
		o.Price, o.Quantity, o.CommitHash,
		nullTime(o.RevealDeadline), o.Revealed, string(o.ProtectionLevel),
		o.EncryptedPayload, nullTime(o.TimeLockUntil), nullString(o.BatchID),
		o.Priority, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	p.logger.Debug("order-stored",
		zap.String("order-id", o.ID),
		zap.String("market", o.Market),
		zap.String("status", string(o.Status)))

	return nil
}

// UpdateOrder overwrites the stored record for o.ID.
func (p *PostgresStore) UpdateOrder(ctx context.Context, o *order.ProtectedOrder) error {
	query := `
		UPDATE protected_orders SET
			revealed = $2, protection_level = $3, encrypted_payload = $4,
			time_lock_until = $5, batch_id = $6, priority = $7, status = $8,
			updated_at = NOW()
		WHERE id = $1
	`

	res, err := p.db.ExecContext(ctx, query,
		o.ID, o.Revealed, string(o.ProtectionLevel), o.EncryptedPayload,
		nullTime(o.TimeLockUntil), nullString(o.BatchID), o.Priority, string(o.Status),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return requireRow(res)
}

// TransitionOrder atomically moves an order between statuses using a
// conditional update, so concurrent transitions serialize in the database.
func (p *PostgresStore) TransitionOrder(ctx context.Context, id string, from, to order.Status) (bool, error) {
	query := `
		UPDATE protected_orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	res, err := p.db.ExecContext(ctx, query, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition order rows: %w", err)
	}
	return rows == 1, nil
}

// GetOrder returns the order with the given id.
func (p *PostgresStore) GetOrder(ctx context.Context, id string) (*order.ProtectedOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM protected_orders WHERE id = $1`
	return p.scanOrder(p.db.QueryRowContext(ctx, query, id))
}

// GetOrderByCommitHash returns the order with the given commit hash.
func (p *PostgresStore) GetOrderByCommitHash(ctx context.Context, hash string) (*order.ProtectedOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM protected_orders WHERE commit_hash = $1`
	return p.scanOrder(p.db.QueryRowContext(ctx, query, hash))
}

func (p *PostgresStore) scanOrder(row *sql.Row) (*order.ProtectedOrder, error) {
	var (
		o             order.ProtectedOrder
		side, kind    string
		level, status string
		deadline      sql.NullTime
		timeLock      sql.NullTime
		batchID       sql.NullString
	)

	err := row.Scan(
		&o.ID, &o.UserID, &o.Market, &side, &kind, &o.Price, &o.Quantity,
		&o.CommitHash, &deadline, &o.Revealed, &level, &o.EncryptedPayload,
		&timeLock, &batchID, &o.Priority, &status, &o.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Side = order.Side(side)
	o.Kind = order.Kind(kind)
	o.ProtectionLevel = order.ProtectionLevel(level)
	o.Status = order.Status(status)
	if deadline.Valid {
		o.RevealDeadline = deadline.Time
	}
	if timeLock.Valid {
		o.TimeLockUntil = timeLock.Time
	}
	if batchID.Valid {
		o.BatchID = batchID.String
	}
	return &o, nil
}

// ListActiveOrders returns active orders for a market/side created at or
// after since.
func (p *PostgresStore) ListActiveOrders(ctx context.Context, market string, side order.Side, since time.Time) ([]*order.ProtectedOrder, error) {
	query := `
		SELECT ` + orderColumns + ` FROM protected_orders
		WHERE status = 'active' AND market = $1 AND side = $2 AND created_at >= $3
	`
	return p.queryOrders(ctx, query, market, string(side), since)
}

// ListPendingOrders returns all orders still awaiting reveal.
func (p *PostgresStore) ListPendingOrders(ctx context.Context) ([]*order.ProtectedOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM protected_orders WHERE status = 'pending'`
	return p.queryOrders(ctx, query)
}

// ListTimeLockedOrders returns all orders still under a time lock.
func (p *PostgresStore) ListTimeLockedOrders(ctx context.Context) ([]*order.ProtectedOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM protected_orders WHERE status = 'time_locked'`
	return p.queryOrders(ctx, query)
}

func (p *PostgresStore) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*order.ProtectedOrder, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*order.ProtectedOrder
	for rows.Next() {
		var (
			o             order.ProtectedOrder
			side, kind    string
			level, status string
			deadline      sql.NullTime
			timeLock      sql.NullTime
			batchID       sql.NullString
		)
		err = rows.Scan(
			&o.ID, &o.UserID, &o.Market, &side, &kind, &o.Price, &o.Quantity,
			&o.CommitHash, &deadline, &o.Revealed, &level, &o.EncryptedPayload,
			&timeLock, &batchID, &o.Priority, &status, &o.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		o.Side = order.Side(side)
		o.Kind = order.Kind(kind)
		o.ProtectionLevel = order.ProtectionLevel(level)
		o.Status = order.Status(status)
		if deadline.Valid {
			o.RevealDeadline = deadline.Time
		}
		if timeLock.Valid {
			o.TimeLockUntil = timeLock.Time
		}
		if batchID.Valid {
			o.BatchID = batchID.String
		}
		out = append(out, &o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

// InsertBatch durably records a new batch.
func (p *PostgresStore) InsertBatch(ctx context.Context, b *order.Batch) error {
	query := `
		INSERT INTO order_batches (id, market, execute_at, random_seed, fair_ordering, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.db.ExecContext(ctx, query,
		b.ID, b.Market, b.ExecuteAt, b.RandomSeed, b.FairOrderingApplied,
		string(b.Status), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// UpdateBatchStatus sets a batch's status.
func (p *PostgresStore) UpdateBatchStatus(ctx context.Context, id string, status order.BatchStatus) error {
	query := `UPDATE order_batches SET status = $2, updated_at = NOW() WHERE id = $1`

	res, err := p.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	return requireRow(res)
}

// AssignOrderToBatch records an order's batch membership.
func (p *PostgresStore) AssignOrderToBatch(ctx context.Context, orderID, batchID string) error {
	query := `UPDATE protected_orders SET batch_id = $2, updated_at = NOW() WHERE id = $1`

	res, err := p.db.ExecContext(ctx, query, orderID, batchID)
	if err != nil {
		return fmt.Errorf("assign order to batch: %w", err)
	}
	return requireRow(res)
}

// InsertTrade records an execution.
func (p *PostgresStore) InsertTrade(ctx context.Context, t *TradeRecord) error {
	query := `
		INSERT INTO executed_trades (id, order_id, market, side, price, quantity, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.db.ExecContext(ctx, query,
		t.ID, t.OrderID, t.Market, string(t.Side), t.Price, t.Quantity, t.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTradesSince returns executions for a market at or after since.
func (p *PostgresStore) ListTradesSince(ctx context.Context, market string, since time.Time) ([]*TradeRecord, error) {
	query := `
		SELECT id, order_id, market, side, price, quantity, executed_at
		FROM executed_trades
		WHERE market = $1 AND executed_at >= $2
		ORDER BY executed_at
	`

	rows, err := p.db.QueryContext(ctx, query, market, since)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*TradeRecord
	for rows.Next() {
		var (
			t    TradeRecord
			side string
		)
		err = rows.Scan(&t.ID, &t.OrderID, &t.Market, &side, &t.Price, &t.Quantity, &t.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = order.Side(side)
		out = append(out, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}

// InsertDetection records a positive front-running detection.
func (p *PostgresStore) InsertDetection(ctx context.Context, d *DetectionRecord) error {
	query := `
		INSERT INTO frontrun_detections (id, market, side, confidence, reason, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := p.db.ExecContext(ctx, query,
		d.ID, d.Market, string(d.Side), d.Confidence, d.Reason, d.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

// CountDetectionsSince returns the number of detections at or after since.
func (p *PostgresStore) CountDetectionsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM frontrun_detections WHERE detected_at >= $1`
	err := p.db.QueryRowContext(ctx, query, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return count, nil
}

// OrderStatsSince aggregates order counts over [since, now].
func (p *PostgresStore) OrderStatsSince(ctx context.Context, since time.Time) (*OrderStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'executed'),
			COUNT(*) FILTER (WHERE status = 'expired'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (reveal_deadline - created_at))), 0)
		FROM protected_orders
		WHERE created_at >= $1
	`

	stats := &OrderStats{}
	var avgSeconds float64
	err := p.db.QueryRowContext(ctx, query, since).Scan(
		&stats.Total, &stats.Executed, &stats.Expired, &stats.Failed, &avgSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	stats.AvgCommitWindow = time.Duration(avgSeconds * float64(time.Second))
	return stats, nil
}

// BatchStatsSince aggregates batch counts over [since, now].
func (p *PostgresStore) BatchStatsSince(ctx context.Context, since time.Time) (*BatchStats, error) {
	query := `
		SELECT
			COUNT(DISTINCT b.id),
			COALESCE(COUNT(o.id)::FLOAT / NULLIF(COUNT(DISTINCT b.id), 0), 0)
		FROM order_batches b
		LEFT JOIN protected_orders o ON o.batch_id = b.id
		WHERE b.created_at >= $1
	`

	stats := &BatchStats{}
	err := p.db.QueryRowContext(ctx, query, since).Scan(&stats.Count, &stats.AvgSize)
	if err != nil {
		return nil, fmt.Errorf("batch stats: %w", err)
	}
	return stats, nil
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
