package events

import (
	"context"

	"github.com/vadiminshakov/infbuy/internal/domain"
	"go.uber.org/zap"
)

// MultiPublisher delivers every event to each publisher in order. A failing
// publisher is logged and does not stop the others.
type MultiPublisher struct {
	l    *zap.Logger
	pubs []Publisher
}

// NewMultiPublisher skips nil publishers.
func NewMultiPublisher(l *zap.Logger, pubs ...Publisher) *MultiPublisher {
	m := &MultiPublisher{l: l}
	for _, p := range pubs {
		if p != nil {
			m.pubs = append(m.pubs, p)
		}
	}
	return m
}

// Publish implements Publisher. It never fails.
func (m *MultiPublisher) Publish(ctx context.Context, e domain.PositionEvent) error {
	for _, p := range m.pubs {
		if err := p.Publish(ctx, e); err != nil {
			m.l.Warn("event publish failed",
				zap.String("event_type", string(e.Type)),
				zap.String("position_id", e.PositionID),
				zap.Error(err))
		}
	}
	return nil
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, domain.PositionEvent) error { return nil }
