// Package events fans out finished-run notifications.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// RunEvent describes one finalized sync run
type RunEvent struct {
	RunID      uuid.UUID `json:"runId"`
	DeviceID   uuid.UUID `json:"deviceId"`
	CompanyID  uuid.UUID `json:"companyId"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
	Total      int       `json:"total"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Notifier receives run events. Implementations must not block for long.
type Notifier interface {
	NotifyRun(ctx context.Context, ev RunEvent) error
}

// Multi delivers to every notifier and joins their errors
type Multi []Notifier

func (m Multi) NotifyRun(ctx context.Context, ev RunEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyRun(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NATSPublisher publishes run events as JSON on a subject
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// ConnectNATS dials url and returns a publisher for subject
func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("eckclock"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	log.Printf("✅ NATS connected: %s (subject %s)", nc.ConnectedUrl(), subject)
	return NewNATSPublisher(nc, subject), nil
}

// NewNATSPublisher wraps an existing connection
func NewNATSPublisher(nc *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{nc: nc, subject: subject}
}

// Subject returns the subject events are published on
func (p *NATSPublisher) Subject() string {
	return p.subject
}

func (p *NATSPublisher) NotifyRun(ctx context.Context, ev RunEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
