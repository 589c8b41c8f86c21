// Package bus connects the pipeline to a watermill message bus.
//
// Uploads arrive on TopicUploads and rankings leave on TopicRankings. The
// transport is either an in-process gochannel or NATS JetStream.
package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"

	"github.com/okian/monthlyrank/pkg/logger"
)

// Transport drivers.
const (
	DriverGoChannel = "gochannel"
	DriverNATS      = "nats"
)

// Topics.
const (
	TopicUploads  = "uploads.received"
	TopicRankings = "ranking.published"
)

// StreamName is the JetStream stream holding both topics.
const StreamName = "MONTHLYRANK"

// Config selects and tunes the transport.
type Config struct {
	Driver     string
	NATSURL    string
	QueueGroup string
}

// Bus bundles a publisher and subscriber over one transport.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	driver string
	logger watermill.LoggerAdapter
}

// New opens the transport named by cfg.Driver. A nil lg uses the global logger.
func New(cfg Config, lg *slog.Logger) (*Bus, error) {
	if lg == nil {
		lg = logger.Slog()
	}
	wmLogger := watermill.NewSlogLogger(lg)

	switch cfg.Driver {
	case "", DriverGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
			Persistent:          true,
		}, wmLogger)
		return &Bus{Publisher: ch, Subscriber: ch, driver: DriverGoChannel, logger: wmLogger}, nil
	case DriverNATS:
		return newNATS(cfg, wmLogger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func newNATS(cfg Config, wmLogger watermill.LoggerAdapter) (*Bus, error) {
	if cfg.NATSURL == "" {
		return nil, ErrNoNATSURL
	}
	if err := ensureStream(cfg.NATSURL); err != nil {
		return nil, err
	}

	marshaler := &nats.NATSMarshaler{}
	options := []nc.Option{
		nc.RetryOnFailedConnect(true),
		nc.Timeout(30 * time.Second),
		nc.ReconnectWait(time.Second),
	}

	publisher, err := nats.NewPublisher(
		nats.PublisherConfig{
			URL:         cfg.NATSURL,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream: nats.JetStreamConfig{
				Disabled:      false,
				AutoProvision: false,
			},
			SubjectCalculator: nats.DefaultSubjectCalculator,
		},
		wmLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}

	group := cfg.QueueGroup
	if group == "" {
		group = "monthlyrank"
	}
	subscriber, err := nats.NewSubscriber(
		nats.SubscriberConfig{
			URL:              cfg.NATSURL,
			QueueGroupPrefix: group,
			SubscribersCount: 1,
			CloseTimeout:     30 * time.Second,
			AckWaitTimeout:   30 * time.Second,
			NatsOptions:      options,
			Unmarshaler:      marshaler,
			JetStream: nats.JetStreamConfig{
				Disabled:      false,
				AutoProvision: false,
				SubscribeOptions: []nc.SubOpt{
					nc.DeliverAll(),
					nc.AckExplicit(),
				},
			},
			SubjectCalculator: nats.DefaultSubjectCalculator,
		},
		wmLogger,
	)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create NATS subscriber: %w", err)
	}

	return &Bus{Publisher: publisher, Subscriber: subscriber, driver: DriverNATS, logger: wmLogger}, nil
}

// ensureStream creates the stream for both topics. Stream names cannot
// contain dots, so it is not left to watermill's auto provisioning.
func ensureStream(url string) error {
	conn, err := nc.Connect(url)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer conn.Close()

	js, err := conn.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}
	_, err = js.AddStream(&nc.StreamConfig{
		Name:     StreamName,
		Subjects: []string{TopicUploads, TopicRankings},
		Storage:  nc.FileStorage,
	})
	if err != nil && !errors.Is(err, nc.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream %s: %w", StreamName, err)
	}
	return nil
}

// Driver returns the transport name.
func (b *Bus) Driver() string { return b.driver }

// Logger returns the watermill logger the transport was built with.
func (b *Bus) Logger() watermill.LoggerAdapter { return b.logger }

// Close closes the publisher and subscriber.
func (b *Bus) Close() error {
	if b.driver == DriverGoChannel {
		return b.Publisher.Close()
	}
	return errors.Join(b.Publisher.Close(), b.Subscriber.Close())
}
