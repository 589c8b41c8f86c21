package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/report"
	"github.com/okian/monthlyrank/pkg/logger"
)

// UploadMessage is the payload of TopicUploads. Content is base64 in JSON.
type UploadMessage struct {
	UploadID string `json:"upload_id"`
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// Submitter runs one upload through the pipeline.
type Submitter interface {
	Submit(ctx context.Context, u model.Upload) (report.Report, error)
}

// Router feeds bus uploads into a Submitter.
type Router struct {
	router *message.Router
	logger logger.Logger
}

// NewRouter registers the upload handler on b. A nil lg uses the global logger.
func NewRouter(b *Bus, s Submitter, lg logger.Logger) (*Router, error) {
	if lg == nil {
		lg = logger.Get().Named("bus")
	}
	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, b.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create watermill router: %w", err)
	}
	r.AddNoPublisherHandler("monthlyrank."+TopicUploads, TopicUploads, b.Subscriber, HandleUpload(s, lg))
	return &Router{router: r, logger: lg}, nil
}

// Run blocks until ctx is done or the router is closed.
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info(ctx, "bus router starting", logger.String("topic", TopicUploads))
	if err := r.router.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Running is closed once the handlers are subscribed.
func (r *Router) Running() chan struct{} { return r.router.Running() }

// Close stops the router and waits for in-flight handlers.
func (r *Router) Close() error { return r.router.Close() }

// HandleUpload builds the upload handler. Success and input errors ack the
// message. Failures before the rows are logged nack it for redelivery.
// Failures after the rows are logged ack it, since a replay would log the
// rows again; the month is recovered by republishing. A nil lg uses the
// global logger.
func HandleUpload(s Submitter, lg logger.Logger) message.NoPublishHandlerFunc {
	if lg == nil {
		lg = logger.Get().Named("bus")
	}
	return func(msg *message.Message) error {
		ctx := msg.Context()

		var in UploadMessage
		if err := json.Unmarshal(msg.Payload, &in); err != nil {
			lg.Warn(ctx, "dropping malformed upload message",
				logger.String("message_id", msg.UUID),
				logger.Error(err),
			)
			return nil
		}
		id := in.UploadID
		if id == "" {
			id = msg.UUID
		}
		u := model.Upload{
			ID:         id,
			Filename:   in.Filename,
			Content:    in.Content,
			ReceivedAt: time.Now().UTC(),
		}

		r, err := s.Submit(ctx, u)
		switch {
		case err == nil:
			lg.Info(ctx, "bus upload processed",
				logger.String("upload_id", u.ID),
				logger.String("filename", u.Filename),
				logger.String("month", r.MonthKey),
				logger.Int("entries", len(r.Entries)),
			)
			return nil
		case model.IsTerminal(err):
			lg.Warn(ctx, "bus upload rejected",
				logger.String("upload_id", u.ID),
				logger.String("filename", u.Filename),
				logger.Error(err),
			)
			return nil
		case model.Logged(err):
			lg.Error(ctx, "bus upload logged but not published; republish the month",
				logger.String("upload_id", u.ID),
				logger.String("filename", u.Filename),
				logger.Error(err),
			)
			return nil
		default:
			return fmt.Errorf("upload %s: %w", u.ID, err)
		}
	}
}
