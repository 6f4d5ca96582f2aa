package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"tokenlock/integrations/outbox"
	"tokenlock/observability/metrics"
)

// EventType represents the logical webhook topic.
type EventType string

const (
	// EventTransfers is emitted for every batch of ledger transfers.
	EventTransfers EventType = "tokenlock.transfers"

	HeaderEvent     = "X-Tokenlock-Event"
	HeaderSignature = "X-Tokenlock-Signature"
	HeaderDelivery  = "X-Tokenlock-Delivery"

	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultInterval    = 2 * time.Second
	defaultBatchSize   = 100
)

// Source is the outbox view consumed by the forwarder.
type Source interface {
	Pending(ctx context.Context, limit int) ([]outbox.Transfer, error)
	MarkForwarded(ctx context.Context, ids []uuid.UUID) error
	CountPending(ctx context.Context) (int, error)
}

// TransferPayload is one ledger instruction in a delivery.
type TransferPayload struct {
	ID          string `json:"id"`
	ReceiptID   string `json:"receiptId"`
	Seq         int    `json:"seq"`
	Command     string `json:"command"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
	CommandTime uint64 `json:"commandTime"`
}

// TransferBatch is the webhook body.
type TransferBatch struct {
	Type        EventType         `json:"type"`
	DeliveryID  string            `json:"deliveryId"`
	Count       int               `json:"count"`
	Transfers   []TransferPayload `json:"transfers"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// Forwarder delivers pending outbox transfers to the external ledger with
// retry and exponential backoff. Transfers are acknowledged in the outbox only
// after the endpoint answers 2xx.
type Forwarder struct {
	endpoint    string
	secret      []byte
	source      Source
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	interval    time.Duration
	batchSize   int
	logger      *slog.Logger
	metrics     *metrics.LockMetrics
	now         func() time.Time
}

// Option mutates forwarder configuration.
type Option func(*Forwarder)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Forwarder) {
		if client != nil {
			f.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(f *Forwarder) {
		if maxAttempts > 0 {
			f.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			f.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			f.maxBackoff = maxBackoff
		}
	}
}

// WithInterval sets the polling cadence used by Run.
func WithInterval(interval time.Duration) Option {
	return func(f *Forwarder) {
		if interval > 0 {
			f.interval = interval
		}
	}
}

// WithBatchSize caps the number of transfers per delivery.
func WithBatchSize(size int) Option {
	return func(f *Forwarder) {
		if size > 0 {
			f.batchSize = size
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics publishes the outbox backlog.
func WithMetrics(m *metrics.LockMetrics) Option {
	return func(f *Forwarder) {
		f.metrics = m
	}
}

// NewForwarder constructs a forwarder. Call Run to start polling.
func NewForwarder(endpoint string, secret []byte, source Source, opts ...Option) (*Forwarder, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	if source == nil {
		return nil, errors.New("webhook: outbox source required")
	}
	f := &Forwarder{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		source:      source,
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		interval:    defaultInterval,
		batchSize:   defaultBatchSize,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Run polls the outbox until ctx is cancelled. Delivery failures are logged
// and retried on the next tick.
func (f *Forwarder) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		for {
			sent, err := f.Flush(ctx)
			if err != nil {
				if ctx.Err() == nil {
					f.logger.Warn("outbox forward failed", slog.Any("error", err))
				}
				break
			}
			if sent < f.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush delivers at most one batch and returns the number of transfers
// acknowledged.
func (f *Forwarder) Flush(ctx context.Context) (int, error) {
	pending, err := f.source.Pending(ctx, f.batchSize)
	if err != nil {
		return 0, fmt.Errorf("webhook: load pending: %w", err)
	}
	if len(pending) == 0 {
		f.publishBacklog(ctx)
		return 0, nil
	}
	batch := TransferBatch{
		Type:        EventTransfers,
		DeliveryID:  deliveryID(pending),
		Count:       len(pending),
		Transfers:   make([]TransferPayload, 0, len(pending)),
		GeneratedAt: f.now().UTC(),
	}
	ids := make([]uuid.UUID, 0, len(pending))
	for _, t := range pending {
		batch.Transfers = append(batch.Transfers, TransferPayload{
			ID:          t.ID.String(),
			ReceiptID:   t.ReceiptID.String(),
			Seq:         t.Seq,
			Command:     t.Command,
			From:        t.From,
			To:          t.To,
			Amount:      t.Amount,
			Reason:      t.Reason,
			CommandTime: t.CommandTime,
		})
		ids = append(ids, t.ID)
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, err
	}
	if err := f.deliver(ctx, batch.DeliveryID, body); err != nil {
		return 0, err
	}
	if err := f.source.MarkForwarded(ctx, ids); err != nil {
		return 0, fmt.Errorf("webhook: acknowledge: %w", err)
	}
	f.logger.Info("outbox batch forwarded",
		slog.String("delivery", batch.DeliveryID),
		slog.Int("count", batch.Count))
	f.publishBacklog(ctx)
	return len(ids), nil
}

func (f *Forwarder) publishBacklog(ctx context.Context) {
	if f.metrics == nil {
		return
	}
	count, err := f.source.CountPending(ctx)
	if err != nil {
		return
	}
	f.metrics.SetOutboxPending(count)
}

func (f *Forwarder) deliver(ctx context.Context, id string, body []byte) error {
	attempt := 0
	backoff := f.minBackoff
	for {
		attempt++
		err := f.attempt(ctx, id, body)
		if err == nil {
			return nil
		}
		if attempt >= f.maxAttempts {
			return fmt.Errorf("webhook: giving up after %d attempts: %w", attempt, err)
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, f.maxBackoff)
	}
}

// attempt bounds one delivery by the client timeout. A client without a
// timeout is bounded only by ctx.
func (f *Forwarder) attempt(ctx context.Context, id string, body []byte) error {
	if f.client.Timeout <= 0 {
		return f.send(ctx, id, body)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, f.client.Timeout)
	defer cancel()
	return f.send(attemptCtx, id, body)
}

func (f *Forwarder) send(ctx context.Context, id string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(EventTransfers))
	req.Header.Set(HeaderDelivery, id)
	req.Header.Set(HeaderSignature, Sign(f.secret, body))
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header produced by Sign.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.TrimSpace(signature)))
}

// deliveryID is stable for a given batch so receivers can deduplicate
// redeliveries after a lost acknowledgement.
func deliveryID(batch []outbox.Transfer) string {
	buf := make([]byte, 0, len(batch)*16)
	for _, t := range batch {
		buf = append(buf, t.ID[:]...)
	}
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:16])
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	if next < current {
		return max
	}
	return next
}
