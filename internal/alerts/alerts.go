// Package alerts delivers fraud alerts to external webhooks.
//
// Accounts under watch get an AlertConfig naming a webhook URL and the
// triggers it cares about. Deliveries are HMAC-SHA256 signed JSON with
// bounded retries; a dead endpoint never blocks the calling request.
package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mwhitt/trustrail/internal/idgen"
	"github.com/mwhitt/trustrail/internal/logging"
	"github.com/mwhitt/trustrail/internal/metrics"
	"github.com/mwhitt/trustrail/internal/retry"
)

// Trigger is an alertable condition.
type Trigger string

const (
	TriggerFlagged Trigger = "account.flagged"
	TriggerBlocked Trigger = "account.blocked"
)

// Alert is the payload delivered to a webhook.
type Alert struct {
	ID        string         `json:"id"`
	Trigger   Trigger        `json:"trigger"`
	AccountID string         `json:"accountId"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Config is a per-account alert subscription.
type Config struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"accountId"` // "*" subscribes to all accounts
	URL         string     `json:"url"`
	Triggers    []Trigger  `json:"triggers"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

func (c *Config) wants(trigger Trigger) bool {
	for _, t := range c.Triggers {
		if t == trigger {
			return true
		}
	}
	return false
}

// Store persists alert configurations.
type Store interface {
	Create(ctx context.Context, cfg *Config) error
	Get(ctx context.Context, id string) (*Config, error)
	ForAccount(ctx context.Context, accountID string) ([]*Config, error)
	Update(ctx context.Context, cfg *Config) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher delivers alerts to subscribed webhooks.
type Dispatcher struct {
	store      Store
	client     *http.Client
	secret     string // HMAC key; empty disables signing
	maxRetries int
	backoff    time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetries overrides the retry budget.
func WithRetries(n int, backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxRetries = n
		d.backoff = backoff
	}
}

// WithHTTPClient overrides the delivery client (for tests).
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = client }
}

// NewDispatcher creates an alert dispatcher.
func NewDispatcher(store Store, secret string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		secret:     secret,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AccountFlagged dispatches a flagged alert. Asynchronous: returns
// after looking up subscriptions, deliveries happen in the background.
func (d *Dispatcher) AccountFlagged(ctx context.Context, accountID, flagID, reason string) {
	d.dispatch(ctx, TriggerFlagged, accountID, map[string]any{
		"flagId": flagID,
		"reason": reason,
	})
}

// NotifyBlocked dispatches a blocked alert. Satisfies action.Notifier.
func (d *Dispatcher) NotifyBlocked(ctx context.Context, accountID string, score float64, reason string) {
	d.dispatch(ctx, TriggerBlocked, accountID, map[string]any{
		"score":  score,
		"reason": reason,
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, trigger Trigger, accountID string, data map[string]any) {
	configs, err := d.store.ForAccount(ctx, accountID)
	if err != nil {
		logging.L(ctx).Error("alert subscription lookup failed", "account", accountID, "error", err)
		return
	}

	alert := &Alert{
		ID:        idgen.WithPrefix("alert_"),
		Trigger:   trigger,
		AccountID: accountID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, cfg := range configs {
		if !cfg.Active || !cfg.wants(trigger) {
			continue
		}
		// Deliver without the request's deadline; the alert outlives it.
		go d.deliver(context.WithoutCancel(ctx), cfg, alert)
	}
}

// deliver posts the alert, retrying transient failures with backoff.
// 4xx responses are permanent; the endpoint rejected the payload and
// retrying won't change that.
func (d *Dispatcher) deliver(ctx context.Context, cfg *Config, alert *Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		d.recordError(ctx, cfg, "failed to marshal alert")
		return
	}

	err = retry.Do(ctx, d.maxRetries+1, d.backoff, func() error {
		return d.post(ctx, cfg.URL, alert, payload)
	})
	if err != nil {
		d.recordError(ctx, cfg, err.Error())
		return
	}

	now := time.Now().UTC()
	cfg.LastSuccess = &now
	cfg.LastError = ""
	if err := d.store.Update(ctx, cfg); err != nil {
		logging.L(ctx).Error("alert config update failed", "config", cfg.ID, "error", err)
	}
	metrics.AlertDeliveriesTotal.WithLabelValues("success").Inc()
}

func (d *Dispatcher) post(ctx context.Context, url string, alert *Alert, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trustrail-Trigger", string(alert.Trigger))
	req.Header.Set("X-Trustrail-Timestamp", fmt.Sprintf("%d", alert.Timestamp.Unix()))
	if d.secret != "" {
		req.Header.Set("X-Trustrail-Signature", Sign(payload, d.secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) recordError(ctx context.Context, cfg *Config, msg string) {
	cfg.LastError = msg
	if err := d.store.Update(ctx, cfg); err != nil {
		logging.L(ctx).Error("alert config update failed", "config", cfg.ID, "error", err)
	}
	metrics.AlertDeliveriesTotal.WithLabelValues("failure").Inc()
	logging.L(ctx).Warn("alert delivery failed", "config", cfg.ID, "url", cfg.URL, "error", msg)
}

// Sign computes the hex HMAC-SHA256 of the payload.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a received signature in constant time.
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
