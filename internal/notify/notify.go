// Package notify publishes domain events to the message broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects published by this service. Keep stable; consumers subscribe to them.
const (
	SubjectOrderPaid          = "orders.paid"
	SubjectOrderPaymentFailed = "orders.payment_failed"
)

// Envelope wraps every published payload.
type Envelope struct {
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Publisher delivers events; implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Encode builds the wire bytes for payload.
func Encode(subject string, payload any, now time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	return json.Marshal(Envelope{Subject: subject, OccurredAt: now.UTC(), Data: data})
}

// NATSPublisher publishes core NATS messages (fire and forget).
type NATSPublisher struct {
	conn *nats.Conn
}

// ConnectNATS dials url with reconnects enabled and logs connection state changes.
func ConnectNATS(url, name string, log *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := Encode(subject, payload, time.Now())
	if err != nil {
		return err
	}
	if err := p.conn.Publish(subject, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil && !p.conn.IsClosed() {
		_ = p.conn.Drain()
	}
}

// Noop drops every event; used when NATS_URL is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

// Recorder keeps published events in memory; useful for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, subject string, payload any) error {
	raw, err := Encode(subject, payload, time.Now())
	if err != nil {
		return err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
	return nil
}

func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}
