// Package notify fans committed beacon changes out to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	commonredis "github.com/aislen404/mapabalizasv16/common/redis"
	"github.com/aislen404/mapabalizasv16/internal/domain"
	"github.com/aislen404/mapabalizasv16/internal/metrics"
	"github.com/aislen404/mapabalizasv16/internal/repository"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event wire form of one committed change
type Event struct {
	EventID    string            `json:"event_id"`
	BalizaID   string            `json:"baliza_id"`
	ChangeType domain.ChangeType `json:"change_type"`
	Status     domain.Status     `json:"status"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	Carretera  string            `json:"carretera"`
	PK         string            `json:"pk"`
	Provincia  string            `json:"provincia"`
	Comunidad  string            `json:"comunidad"`
	ChangedAt  time.Time         `json:"changed_at"`
}

// NewEvent builds the wire form of c
func NewEvent(c repository.Change) Event {
	return Event{
		EventID:    uuid.NewString(),
		BalizaID:   c.Baliza.ID,
		ChangeType: c.ChangeType,
		Status:     c.Baliza.Status,
		Lat:        c.Baliza.Lat,
		Lon:        c.Baliza.Lon,
		Carretera:  c.Baliza.Carretera,
		PK:         c.Baliza.PK,
		Provincia:  c.Baliza.Provincia,
		Comunidad:  c.Baliza.Comunidad,
		ChangedAt:  c.ChangedAt,
	}
}

// Notifier publishes changes after they are committed. Failures never undo a commit.
type Notifier interface {
	Notify(ctx context.Context, changes []repository.Change) error
}

// Nop discards every change
type Nop struct{}

func (Nop) Notify(context.Context, []repository.Change) error { return nil }

// StreamNotifier appends one Redis stream entry per change
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamNotifier creates a notifier writing to stream, trimmed to roughly maxLen entries
func NewStreamNotifier(client *redis.Client, stream string, maxLen int64) *StreamNotifier {
	return &StreamNotifier{client: client, stream: stream, maxLen: maxLen}
}

func (n *StreamNotifier) Notify(ctx context.Context, changes []repository.Change) error {
	var errs []error
	for _, c := range changes {
		if _, err := commonredis.PublishJSONToStream(ctx, n.client, n.stream, n.maxLen, NewEvent(c)); err != nil {
			metrics.NotifyFailures.WithLabelValues("redis").Inc()
			errs = append(errs, fmt.Errorf("xadd %s: %w", c.Baliza.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Publisher is the subset of the MQTT client the notifier needs
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// MQTTNotifier publishes each change on <prefix>/<balizaId>, retained so
// late subscribers see the latest state
type MQTTNotifier struct {
	pub    Publisher
	prefix string
}

// NewMQTTNotifier creates the notifier
func NewMQTTNotifier(pub Publisher, topicPrefix string) *MQTTNotifier {
	return &MQTTNotifier{pub: pub, prefix: topicPrefix}
}

// Topic for one baliza
func (n *MQTTNotifier) Topic(balizaID string) string {
	return n.prefix + "/" + balizaID
}

func (n *MQTTNotifier) Notify(_ context.Context, changes []repository.Change) error {
	var errs []error
	for _, c := range changes {
		payload, err := json.Marshal(NewEvent(c))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := n.pub.Publish(n.Topic(c.Baliza.ID), true, payload); err != nil {
			metrics.NotifyFailures.WithLabelValues("mqtt").Inc()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Multi delivers to every sink, logging and collecting failures
type Multi struct {
	sinks  []Notifier
	logger *zap.Logger
}

// NewMulti combines sinks; nil sinks are skipped
func NewMulti(logger *zap.Logger, sinks ...Notifier) *Multi {
	m := &Multi{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) Notify(ctx context.Context, changes []repository.Change) error {
	if len(changes) == 0 {
		return nil
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, changes); err != nil {
			m.logger.Warn("change notification failed", zap.String("sink", fmt.Sprintf("%T", s)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
