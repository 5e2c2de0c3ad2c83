package trust

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// PostgresStore implements ProfileStore using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, accountID string) (*Profile, error) {
	p := &Profile{AccountID: accountID}
	var componentsJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT score, tier, COALESCE(components::TEXT, '{}'),
			total_spent_cents, transactions, successes, failures, risk_points,
			created_at, updated_at
		FROM trust_profiles WHERE account_id = $1
	`, accountID).Scan(&p.Score, &p.Tier, &componentsJSON,
		&p.TotalSpentCents, &p.Transactions, &p.Successes, &p.Failures, &p.RiskPoints,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Components = make(map[string]float64)
	if err := json.Unmarshal([]byte(componentsJSON), &p.Components); err != nil {
		p.Components = map[string]float64{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reason, created_at FROM risk_flags
		WHERE account_id = $1 ORDER BY created_at ASC, id ASC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		f := &RiskFlag{}
		if err := rows.Scan(&f.ID, &f.Reason, &f.CreatedAt); err != nil {
			return nil, err
		}
		p.Flags = append(p.Flags, f)
	}
	return p, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, profile *Profile) error {
	componentsJSON, _ := json.Marshal(profile.Components)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trust_profiles (account_id, score, tier, components, total_spent_cents, transactions, successes, failures, risk_points, created_at, updated_at)
		VALUES ($1, $2, $3, $4::JSONB, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (account_id) DO NOTHING
	`, profile.AccountID, profile.Score, profile.Tier, string(componentsJSON),
		profile.TotalSpentCents, profile.Transactions, profile.Successes, profile.Failures,
		profile.RiskPoints, profile.CreatedAt)
	return err
}

func (s *PostgresStore) UpdateScore(ctx context.Context, accountID string, score float64, tier Tier, components map[string]float64, at time.Time) error {
	componentsJSON, _ := json.Marshal(components)
	_, err := s.db.ExecContext(ctx, `
		UPDATE trust_profiles
		SET score = $2, tier = $3, components = $4::JSONB, updated_at = $5
		WHERE account_id = $1
	`, accountID, score, tier, string(componentsJSON), at)
	return err
}

func (s *PostgresStore) RecordPayment(ctx context.Context, accountID string, amountCents int64, success bool) error {
	if success {
		_, err := s.db.ExecContext(ctx, `
			UPDATE trust_profiles
			SET transactions = transactions + 1, successes = successes + 1,
				total_spent_cents = total_spent_cents + $2, updated_at = NOW()
			WHERE account_id = $1
		`, accountID, amountCents)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE trust_profiles
		SET transactions = transactions + 1, failures = failures + 1, updated_at = NOW()
		WHERE account_id = $1
	`, accountID)
	return err
}

func (s *PostgresStore) AddFlag(ctx context.Context, accountID string, flag *RiskFlag, riskPoints float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO risk_flags (id, account_id, reason, created_at)
		VALUES ($1, $2, $3, $4)
	`, flag.ID, accountID, flag.Reason, flag.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE trust_profiles SET risk_points = $2, updated_at = $3 WHERE account_id = $1
	`, accountID, riskPoints, flag.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}
