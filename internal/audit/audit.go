// Package audit implements the append-only account event trail.
//
// Events are written once and never updated or deleted; a correction is
// expressed as a new compensating event. History reads are filtered,
// ordered newest-first, and capped. Unknown accounts yield empty results,
// not errors.
package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/mwhitt/trustrail/internal/pagination"
	"github.com/mwhitt/trustrail/internal/traces"
	"github.com/mwhitt/trustrail/internal/validation"
)

// EventType classifies an account event. The set is closed; anything else
// is rejected before a write happens.
type EventType string

const (
	EventLogin              EventType = "login"
	EventLogout             EventType = "logout"
	EventPrefChange         EventType = "pref_change"
	EventPaymentAttempt     EventType = "payment_attempt"
	EventPaymentSuccess     EventType = "payment_success"
	EventPaymentFailed      EventType = "payment_failed"
	EventGatewayLink        EventType = "gateway_link"
	EventGatewayUnlink      EventType = "gateway_unlink"
	EventProfileCreate      EventType = "profile_create"
	EventProfileUpdate      EventType = "profile_update"
	EventPhoneVerified      EventType = "phone_verified"
	EventEmailVerified      EventType = "email_verified"
	EventDeviceRegister     EventType = "device_register"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventFraudFlag          EventType = "fraud_flag"
)

var knownEventTypes = map[EventType]bool{
	EventLogin: true, EventLogout: true, EventPrefChange: true,
	EventPaymentAttempt: true, EventPaymentSuccess: true, EventPaymentFailed: true,
	EventGatewayLink: true, EventGatewayUnlink: true,
	EventProfileCreate: true, EventProfileUpdate: true,
	EventPhoneVerified: true, EventEmailVerified: true, EventDeviceRegister: true,
	EventSuspiciousActivity: true, EventFraudFlag: true,
}

// Valid reports whether t is a member of the closed event type set.
func (t EventType) Valid() bool {
	return knownEventTypes[t]
}

// Event is one immutable row in the audit trail.
type Event struct {
	ID          int64     `json:"id"`
	AccountID   string    `json:"accountId"`
	EventType   EventType `json:"eventType"`
	Metadata    string    `json:"metadata,omitempty"` // opaque JSON blob
	IPHash      string    `json:"ipHash,omitempty"`
	DeviceHash  string    `json:"deviceHash,omitempty"`
	Gateway     string    `json:"gateway,omitempty"`
	AmountCents int64     `json:"amountCents,omitempty"`
	Success     bool      `json:"success"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DefaultHistoryLimit caps history queries that don't specify a limit.
const DefaultHistoryLimit = 500

// MaxHistoryLimit is the hard ceiling for a single history query.
const MaxHistoryLimit = 1000

// HistoryFilter narrows a history query.
type HistoryFilter struct {
	EventType EventType // zero value = all types
	Since     time.Time // zero value = no lower bound
	Limit     int       // <= 0 = DefaultHistoryLimit

	// BeforeTime/BeforeID resume a newest-first page: only events
	// strictly older than this position are returned. Zero BeforeTime
	// means no cursor.
	BeforeTime time.Time
	BeforeID   int64
}

// Store persists events. Implementations must be append-only: no update
// or delete methods exist, and none may be added.
type Store interface {
	// AppendEvent assigns the event's id and server timestamp and persists it.
	AppendEvent(ctx context.Context, event *Event) (int64, error)
	// History returns events for an account, newest first, per filter.
	History(ctx context.Context, accountID string, f HistoryFilter) ([]*Event, error)
	// CountSince counts an account's events at or after the given time.
	CountSince(ctx context.Context, accountID string, since time.Time) (int, error)
	// DistinctGateways returns the distinct gateways for an account's
	// events of the given type, in first-seen order.
	DistinctGateways(ctx context.Context, accountID string, eventType EventType) ([]string, error)
}

// RecordInput carries the caller-supplied fields for a new event.
type RecordInput struct {
	AccountID   string `json:"accountId"`
	EventType   string `json:"eventType"`
	Metadata    string `json:"metadata,omitempty"`
	IPHash      string `json:"ipHash,omitempty"`
	DeviceHash  string `json:"deviceHash,omitempty"`
	Gateway     string `json:"gateway,omitempty"`
	AmountCents int64  `json:"amountCents,omitempty"`
	Success     *bool  `json:"success,omitempty"` // nil = true
}

// Service validates and records events and answers history queries.
type Service struct {
	store Store
}

// NewService creates an audit service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Record validates the input and appends a new event. Nothing is written
// if validation fails.
func (s *Service) Record(ctx context.Context, in RecordInput) (_ int64, retErr error) {
	ctx, span := traces.StartSpan(ctx, "audit.Record",
		traces.Account(in.AccountID), traces.EventType(in.EventType))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	if errs := validation.Validate(
		validation.Required("accountId", in.AccountID),
		validation.ValidAccount("accountId", in.AccountID),
		validation.Required("eventType", in.EventType),
		validation.ValidDigest("ipHash", in.IPHash),
		validation.ValidDigest("deviceHash", in.DeviceHash),
		validation.MaxLength("metadata", in.Metadata, validation.MaxStringLength),
		validation.MaxLength("gateway", in.Gateway, 64),
	); len(errs) > 0 {
		return 0, errs
	}
	if !EventType(in.EventType).Valid() {
		return 0, validation.ValidationErrors{{Field: "eventType", Message: fmt.Sprintf("unknown event type %q", in.EventType)}}
	}
	if in.AmountCents < 0 {
		return 0, validation.ValidationErrors{{Field: "amountCents", Message: "must not be negative"}}
	}

	success := true
	if in.Success != nil {
		success = *in.Success
	}

	event := &Event{
		AccountID:   in.AccountID,
		EventType:   EventType(in.EventType),
		Metadata:    in.Metadata,
		IPHash:      in.IPHash,
		DeviceHash:  in.DeviceHash,
		Gateway:     in.Gateway,
		AmountCents: in.AmountCents,
		Success:     success,
	}

	id, err := s.store.AppendEvent(ctx, event)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return id, nil
}

// History returns an account's events, newest first. An unknown account
// yields an empty slice.
func (s *Service) History(ctx context.Context, accountID string, f HistoryFilter) ([]*Event, error) {
	if !validation.IsValidAccountID(accountID) {
		return nil, validation.ValidationErrors{{Field: "accountId", Message: "must be a valid account handle (@name)"}}
	}
	if f.EventType != "" && !f.EventType.Valid() {
		return nil, validation.ValidationErrors{{Field: "eventType", Message: fmt.Sprintf("unknown event type %q", f.EventType)}}
	}
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}

	events, err := s.store.History(ctx, accountID, f)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return events, nil
}

// HistoryPage is History with cursor pagination: it returns one page of
// events plus an opaque cursor for the next page, if any.
func (s *Service) HistoryPage(ctx context.Context, accountID string, f HistoryFilter, cursor string) ([]*Event, string, bool, error) {
	c, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", false, validation.ValidationErrors{{Field: "cursor", Message: "invalid cursor"}}
	}
	if c != nil {
		id, err := strconv.ParseInt(c.ID, 10, 64)
		if err != nil {
			return nil, "", false, validation.ValidationErrors{{Field: "cursor", Message: "invalid cursor"}}
		}
		f.BeforeTime = c.CreatedAt
		f.BeforeID = id
	}

	if !validation.IsValidAccountID(accountID) {
		return nil, "", false, validation.ValidationErrors{{Field: "accountId", Message: "must be a valid account handle (@name)"}}
	}
	if f.EventType != "" && !f.EventType.Valid() {
		return nil, "", false, validation.ValidationErrors{{Field: "eventType", Message: fmt.Sprintf("unknown event type %q", f.EventType)}}
	}
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	limit := f.Limit
	f.Limit = limit + 1 // one extra row decides has_more

	events, err := s.store.History(ctx, accountID, f)
	if err != nil {
		return nil, "", false, fmt.Errorf("query history: %w", err)
	}

	events, next, hasMore := pagination.ComputePage(events, limit, func(e *Event) (time.Time, string) {
		return e.CreatedAt, strconv.FormatInt(e.ID, 10)
	})
	return events, next, hasMore, nil
}
