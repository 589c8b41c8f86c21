package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/report"
	"github.com/okian/monthlyrank/pkg/metrics"
)

// RankingMessage is the payload of TopicRankings.
type RankingMessage struct {
	Month   string               `json:"month"`
	Text    string               `json:"text"`
	Chunks  []string             `json:"chunks"`
	Embed   report.Embed         `json:"embed"`
	Entries []model.RankingEntry `json:"entries"`
}

// Sink publishes reports on the bus.
type Sink struct {
	publisher message.Publisher
	topic     string
}

// NewSink creates a Sink publishing to TopicRankings.
func NewSink(p message.Publisher) *Sink {
	return &Sink{publisher: p, topic: TopicRankings}
}

// Name returns the sink name.
func (s *Sink) Name() string { return "bus" }

// Notify publishes r as a RankingMessage.
func (s *Sink) Notify(ctx context.Context, r report.Report) error {
	start := time.Now()
	err := s.publish(ctx, r)
	metrics.RecordSinkCall(s.Name(), time.Since(start))
	if err != nil {
		metrics.RecordSinkError(s.Name())
		return model.External("notify.bus", err)
	}
	return nil
}

func (s *Sink) publish(ctx context.Context, r report.Report) error {
	payload, err := json.Marshal(RankingMessage{
		Month:   r.MonthKey,
		Text:    r.Text,
		Chunks:  r.Chunks,
		Embed:   r.Embed,
		Entries: r.Entries,
	})
	if err != nil {
		return fmt.Errorf("marshal ranking: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("month", r.MonthKey)
	msg.SetContext(ctx)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", s.topic, err)
	}
	return nil
}
