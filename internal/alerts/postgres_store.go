package alerts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed alert config store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, cfg *Config) error {
	triggers := make([]string, len(cfg.Triggers))
	for i, t := range cfg.Triggers {
		triggers[i] = string(t)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_configs (id, account_id, url, triggers, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, cfg.ID, cfg.AccountID, cfg.URL, pq.Array(triggers), cfg.Active, cfg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert config: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, url, triggers, active, created_at, last_success, last_error
		FROM alert_configs WHERE id = $1
	`, id)
	cfg, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert config %s not found", id)
	}
	return cfg, err
}

func (s *PostgresStore) ForAccount(ctx context.Context, accountID string) ([]*Config, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, url, triggers, active, created_at, last_success, last_error
		FROM alert_configs
		WHERE account_id = $1 OR account_id = '*'
		ORDER BY created_at
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query alert configs: %w", err)
	}
	defer rows.Close()

	var configs []*Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, cfg *Config) error {
	triggers := make([]string, len(cfg.Triggers))
	for i, t := range cfg.Triggers {
		triggers[i] = string(t)
	}

	var lastSuccess sql.NullTime
	if cfg.LastSuccess != nil {
		lastSuccess = sql.NullTime{Time: *cfg.LastSuccess, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE alert_configs
		SET url = $2, triggers = $3, active = $4, last_success = $5, last_error = $6
		WHERE id = $1
	`, cfg.ID, cfg.URL, pq.Array(triggers), cfg.Active, lastSuccess, cfg.LastError)
	if err != nil {
		return fmt.Errorf("update alert config: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alert_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete alert config: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*Config, error) {
	var cfg Config
	var triggers []string
	var lastSuccess sql.NullTime
	var lastError sql.NullString

	err := row.Scan(&cfg.ID, &cfg.AccountID, &cfg.URL, pq.Array(&triggers),
		&cfg.Active, &cfg.CreatedAt, &lastSuccess, &lastError)
	if err != nil {
		return nil, err
	}

	cfg.Triggers = make([]Trigger, len(triggers))
	for i, t := range triggers {
		cfg.Triggers[i] = Trigger(t)
	}
	if lastSuccess.Valid {
		t := lastSuccess.Time
		cfg.LastSuccess = &t
	}
	cfg.LastError = lastError.String
	return &cfg, nil
}
