// Package reference maintains the hashed-identifier index used for
// cross-account fraud detection.
//
// A link associates the digest of a phone, email, or device id with an
// account. Registration is idempotent: the (type, hash, account) triple is
// unique and re-registering it is a no-op. The cross-lookup query surfaces
// digests shared by multiple distinct accounts, which is the primary fraud
// signal consumed by the scoring engine.
package reference

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/mwhitt/trustrail/internal/hashing"
	"github.com/mwhitt/trustrail/internal/traces"
	"github.com/mwhitt/trustrail/internal/validation"
)

// Type classifies a reference link.
type Type string

const (
	TypePhoneHash Type = "phone_hash"
	TypeEmailHash Type = "email_hash"
	TypeDeviceID  Type = "device_id"
)

// Valid reports whether t is a known reference type.
func (t Type) Valid() bool {
	switch t {
	case TypePhoneHash, TypeEmailHash, TypeDeviceID:
		return true
	}
	return false
}

// Link is an immutable hashed-identifier-to-account association.
type Link struct {
	ID            int64     `json:"id"`
	ReferenceType Type      `json:"referenceType"`
	ValueHash     string    `json:"valueHash"`
	AccountID     string    `json:"accountId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CrossLookupResult is one shared-identifier group, derived at query time.
type CrossLookupResult struct {
	ReferenceType Type     `json:"referenceType"`
	ValueHash     string   `json:"valueHash"`
	AccountIDs    []string `json:"accountIds"`
	Count         int      `json:"count"`
}

// DefaultMinAccounts is the cross-lookup group size floor when the caller
// doesn't specify one.
const DefaultMinAccounts = 2

// Store persists reference links.
type Store interface {
	// Register inserts the link unless the (type, hash, account) triple
	// already exists, in which case it is silently ignored.
	Register(ctx context.Context, link *Link) error
	// AccountsByReference returns the distinct accounts linked to a digest,
	// ordered by first registration.
	AccountsByReference(ctx context.Context, t Type, valueHash string) ([]string, error)
	// ReferencesForAccount returns all links registered for an account.
	ReferencesForAccount(ctx context.Context, accountID string) ([]*Link, error)
	// CrossLookup returns groups of (type, hash) pairs linked to at least
	// minAccounts distinct accounts. An empty type matches all types.
	CrossLookup(ctx context.Context, t Type, minAccounts int) ([]*CrossLookupResult, error)
	// SharedReferenceCount counts the account's references that are linked
	// to two or more distinct accounts.
	SharedReferenceCount(ctx context.Context, accountID string) (int, error)
}

// Service validates inputs and fronts the store.
type Service struct {
	store Store
}

// NewService creates a reference index service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

func validateTriple(accountID string, t Type, valueHash string) error {
	if errs := validation.Validate(
		validation.Required("accountId", accountID),
		validation.ValidAccount("accountId", accountID),
		validation.Required("valueHash", valueHash),
		validation.ValidDigest("valueHash", valueHash),
	); len(errs) > 0 {
		return errs
	}
	if !t.Valid() {
		return validation.ValidationErrors{{Field: "referenceType", Message: fmt.Sprintf("unknown reference type %q", t)}}
	}
	return nil
}

// Register links a precomputed digest to an account. Registering the same
// triple twice is a no-op, never an error.
func (s *Service) Register(ctx context.Context, accountID string, t Type, valueHash string) (retErr error) {
	ctx, span := traces.StartSpan(ctx, "reference.Register",
		traces.Account(accountID), traces.ReferenceType(string(t)))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	if err := validateTriple(accountID, t, valueHash); err != nil {
		return err
	}
	link := &Link{ReferenceType: t, ValueHash: valueHash, AccountID: accountID}
	if err := s.store.Register(ctx, link); err != nil {
		return fmt.Errorf("register reference: %w", err)
	}
	return nil
}

// RegisterPhone normalizes, hashes, and links a raw phone number. The raw
// value never reaches the store.
func (s *Service) RegisterPhone(ctx context.Context, accountID, rawPhone string) (string, error) {
	digest, err := hashing.Phone(rawPhone)
	if err != nil {
		return "", validation.ValidationErrors{{Field: "value", Message: err.Error()}}
	}
	return digest, s.Register(ctx, accountID, TypePhoneHash, digest)
}

// RegisterValue hashes and links a raw email or device id.
func (s *Service) RegisterValue(ctx context.Context, accountID string, t Type, rawValue string) (string, error) {
	if t == TypePhoneHash {
		return s.RegisterPhone(ctx, accountID, rawValue)
	}
	if err := validation.Validate(validation.Required("value", rawValue)); len(err) > 0 {
		return "", err
	}
	digest := hashing.ReferenceValue(rawValue)
	return digest, s.Register(ctx, accountID, t, digest)
}

// Lookup returns the accounts linked to a digest. Unknown digests yield an
// empty slice.
func (s *Service) Lookup(ctx context.Context, t Type, valueHash string) ([]string, error) {
	if !t.Valid() {
		return nil, validation.ValidationErrors{{Field: "referenceType", Message: fmt.Sprintf("unknown reference type %q", t)}}
	}
	if !validation.IsValidDigest(valueHash) {
		return nil, validation.ValidationErrors{{Field: "valueHash", Message: "must be a 64-character lowercase hex digest"}}
	}
	accounts, err := s.store.AccountsByReference(ctx, t, valueHash)
	if err != nil {
		return nil, fmt.Errorf("lookup reference: %w", err)
	}
	return accounts, nil
}

// ForAccount returns all references registered for an account.
func (s *Service) ForAccount(ctx context.Context, accountID string) ([]*Link, error) {
	if !validation.IsValidAccountID(accountID) {
		return nil, validation.ValidationErrors{{Field: "accountId", Message: "must be a valid account handle (@name)"}}
	}
	links, err := s.store.ReferencesForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return links, nil
}

// CrossLookup returns shared-identifier groups with at least minAccounts
// distinct accounts (default 2). A zero type matches all types.
func (s *Service) CrossLookup(ctx context.Context, t Type, minAccounts int) ([]*CrossLookupResult, error) {
	if t != "" && !t.Valid() {
		return nil, validation.ValidationErrors{{Field: "referenceType", Message: fmt.Sprintf("unknown reference type %q", t)}}
	}
	if minAccounts < 1 {
		minAccounts = DefaultMinAccounts
	}
	groups, err := s.store.CrossLookup(ctx, t, minAccounts)
	if err != nil {
		return nil, fmt.Errorf("cross lookup: %w", err)
	}
	return groups, nil
}
