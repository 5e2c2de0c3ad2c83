package reference

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL. Idempotency rides on
// the unique (reference_type, value_hash, account_id) index with
// ON CONFLICT DO NOTHING.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed reference store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Register(ctx context.Context, link *Link) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reference_lookups (reference_type, value_hash, account_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (reference_type, value_hash, account_id) DO NOTHING
	`, link.ReferenceType, link.ValueHash, link.AccountID)
	return err
}

func (s *PostgresStore) AccountsByReference(ctx context.Context, t Type, valueHash string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id FROM reference_lookups
		WHERE reference_type = $1 AND value_hash = $2
		ORDER BY created_at ASC, id ASC
	`, t, valueHash)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	accounts := []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) ReferencesForAccount(ctx context.Context, accountID string) ([]*Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference_type, value_hash, account_id, created_at
		FROM reference_lookups
		WHERE account_id = $1
		ORDER BY id ASC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	links := []*Link{}
	for rows.Next() {
		l := &Link{}
		if err := rows.Scan(&l.ID, &l.ReferenceType, &l.ValueHash, &l.AccountID, &l.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *PostgresStore) CrossLookup(ctx context.Context, t Type, minAccounts int) ([]*CrossLookupResult, error) {
	query := `
		SELECT reference_type, value_hash,
			ARRAY_AGG(account_id ORDER BY created_at ASC, id ASC),
			COUNT(DISTINCT account_id) AS accounts
		FROM reference_lookups`
	args := []interface{}{minAccounts}
	if t != "" {
		query += ` WHERE reference_type = $2`
		args = append(args, t)
	}
	query += `
		GROUP BY reference_type, value_hash
		HAVING COUNT(DISTINCT account_id) >= $1
		ORDER BY accounts DESC, value_hash ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := []*CrossLookupResult{}
	for rows.Next() {
		r := &CrossLookupResult{}
		if err := rows.Scan(&r.ReferenceType, &r.ValueHash, pq.Array(&r.AccountIDs), &r.Count); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) SharedReferenceCount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM (
			SELECT r.reference_type, r.value_hash
			FROM reference_lookups r
			WHERE r.account_id = $1
			GROUP BY r.reference_type, r.value_hash
			HAVING (
				SELECT COUNT(DISTINCT o.account_id)
				FROM reference_lookups o
				WHERE o.reference_type = r.reference_type AND o.value_hash = r.value_hash
			) >= 2
		) shared
	`, accountID).Scan(&count)
	return count, err
}
