package audit

import (
	"context"
	"database/sql"
	"strconv"
	"time"
)

// PostgresStore implements Store using PostgreSQL. Only INSERT and SELECT
// are ever issued against account_history; immutability is the audit
// guarantee.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed event store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event *Event) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO account_history (account_id, event_type, metadata, ip_hash, device_hash, gateway, amount_cents, success, created_at)
		VALUES ($1, $2, COALESCE(NULLIF($3, '')::JSONB, '{}'), $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at
	`, event.AccountID, event.EventType, event.Metadata, event.IPHash, event.DeviceHash,
		event.Gateway, event.AmountCents, event.Success)

	if err := row.Scan(&event.ID, &event.CreatedAt); err != nil {
		return 0, err
	}
	return event.ID, nil
}

func (s *PostgresStore) History(ctx context.Context, accountID string, f HistoryFilter) ([]*Event, error) {
	query := `SELECT id, account_id, event_type, COALESCE(metadata::TEXT, '{}'),
		COALESCE(ip_hash, ''), COALESCE(device_hash, ''), COALESCE(gateway, ''),
		COALESCE(amount_cents, 0), success, created_at
		FROM account_history WHERE account_id = $1`
	args := []interface{}{accountID}

	if f.EventType != "" {
		args = append(args, f.EventType)
		query += ` AND event_type = $2`
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !f.BeforeTime.IsZero() {
		args = append(args, f.BeforeTime, f.BeforeID)
		query += ` AND (created_at, id) < ($` + strconv.Itoa(len(args)-1) + `, $` + strconv.Itoa(len(args)) + `)`
	}
	args = append(args, f.Limit)
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	events := []*Event{}
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.AccountID, &e.EventType, &e.Metadata,
			&e.IPHash, &e.DeviceHash, &e.Gateway, &e.AmountCents, &e.Success, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) CountSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM account_history WHERE account_id = $1 AND created_at >= $2
	`, accountID, since).Scan(&count)
	return count, err
}

func (s *PostgresStore) DistinctGateways(ctx context.Context, accountID string, eventType EventType) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gateway FROM account_history
		WHERE account_id = $1 AND event_type = $2 AND gateway <> ''
		GROUP BY gateway ORDER BY MIN(id)
	`, accountID, eventType)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var gateways []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		gateways = append(gateways, g)
	}
	return gateways, rows.Err()
}
