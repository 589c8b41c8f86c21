package retry_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/monthlyrank/internal/adapters/notify"
	"github.com/okian/monthlyrank/internal/adapters/repository"
	"github.com/okian/monthlyrank/internal/adapters/retry"
	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/report"
	. "github.com/smartystreets/goconvey/convey"
)

var fast = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

type tempErr struct{ temporary bool }

func (e tempErr) Error() string   { return "backend said no" }
func (e tempErr) Temporary() bool { return e.temporary }

// refusal is a quota refusal: temporary and known not to have run.
type refusal struct{}

func (refusal) Error() string   { return "quota exceeded" }
func (refusal) Temporary() bool { return true }
func (refusal) Refused() bool   { return true }

// flakyStore fails the first failures calls of each method with err.
type flakyStore struct {
	*repository.MemoryStore
	err      error
	failures int
	calls    int
}

func (f *flakyStore) fail() error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyStore) ReadRows(ctx context.Context, resource string) ([][]string, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.MemoryStore.ReadRows(ctx, resource)
}

func (f *flakyStore) AppendRows(ctx context.Context, resource string, rows [][]string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.MemoryStore.AppendRows(ctx, resource, rows)
}

type flakySink struct {
	err   error
	calls int
}

func (s *flakySink) Name() string { return "flaky" }

func (s *flakySink) Notify(context.Context, report.Report) error {
	s.calls++
	if s.calls == 1 {
		return s.err
	}
	return nil
}

func TestRetryable(t *testing.T) {
	Convey("Given error kinds", t, func() {
		So(retry.Retryable(nil), ShouldBeFalse)
		So(retry.Retryable(errors.New("connection reset")), ShouldBeTrue)
		So(retry.Retryable(tempErr{temporary: true}), ShouldBeTrue)
		So(retry.Retryable(tempErr{temporary: false}), ShouldBeFalse)
		So(retry.Retryable(context.Canceled), ShouldBeFalse)
		So(retry.Retryable(&model.ValidationError{Column: "順位"}), ShouldBeFalse)
		So(retry.Retryable(repository.ErrEmptyBlock), ShouldBeFalse)
		So(retry.Retryable(model.External("op", tempErr{temporary: true})), ShouldBeTrue)

		So(retry.Rejected(errors.New("connection reset")), ShouldBeFalse)
		So(retry.Rejected(tempErr{temporary: true}), ShouldBeFalse)
		So(retry.Rejected(refusal{}), ShouldBeTrue)
		So(retry.Rejected(model.External("op", refusal{})), ShouldBeTrue)
	})
}

func TestStore(t *testing.T) {
	Convey("Given a store that fails twice", t, func() {
		ctx := context.Background()
		inner := &flakyStore{MemoryStore: repository.NewMemoryStore(), err: errors.New("timeout"), failures: 2}
		s := retry.WrapStore(inner, fast, nil)

		Convey("When reading", func() {
			_, err := s.ReadRows(ctx, "events")

			Convey("Then the third attempt succeeds", func() {
				So(err, ShouldBeNil)
				So(inner.calls, ShouldEqual, 3)
			})
		})

		Convey("When appending after an ambiguous failure", func() {
			err := s.AppendRows(ctx, "events", [][]string{{"a"}})

			Convey("Then the append is not repeated", func() {
				So(err, ShouldNotBeNil)
				So(inner.calls, ShouldEqual, 1)
			})
		})

		Convey("When appending after a temporary failure that may have applied", func() {
			inner.err = tempErr{temporary: true}
			err := s.AppendRows(ctx, "events", [][]string{{"a"}})

			So(err, ShouldNotBeNil)
			So(inner.calls, ShouldEqual, 1)
		})

		Convey("When appending after a refusal", func() {
			inner.err = refusal{}
			err := s.AppendRows(ctx, "events", [][]string{{"a"}})

			So(err, ShouldBeNil)
			So(inner.calls, ShouldEqual, 3)
		})
	})

	Convey("Given a store that always fails", t, func() {
		inner := &flakyStore{MemoryStore: repository.NewMemoryStore(), err: errors.New("down"), failures: 100}
		s := retry.WrapStore(inner, fast, nil)

		_, err := s.ReadRows(context.Background(), "events")

		Convey("Then attempts are bounded", func() {
			So(err, ShouldNotBeNil)
			So(inner.calls, ShouldEqual, 3)
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		inner := &flakyStore{MemoryStore: repository.NewMemoryStore(), err: errors.New("down"), failures: 100}

		_, err := retry.WrapStore(inner, fast, nil).ReadRows(ctx, "events")

		So(err, ShouldNotBeNil)
		So(inner.calls, ShouldBeLessThanOrEqualTo, 1)
	})
}

func TestSink(t *testing.T) {
	Convey("Given a sink throttled once", t, func() {
		inner := &flakySink{err: refusal{}}
		s := retry.WrapSink(inner, fast, nil)

		err := s.Notify(context.Background(), report.Format(nil, "2024-05"))

		So(err, ShouldBeNil)
		So(inner.calls, ShouldEqual, 2)
		So(s.Name(), ShouldEqual, "flaky")
	})

	Convey("Given a sink that fails without a refusal", t, func() {
		inner := &flakySink{err: errors.New("connection reset")}
		err := retry.WrapSink(inner, fast, nil).Notify(context.Background(), report.Format(nil, "2024-05"))

		Convey("Then the failure surfaces as an external service error", func() {
			So(errors.Is(err, model.ErrExternalService), ShouldBeTrue)
			So(inner.calls, ShouldEqual, 1)
		})
	})

	Convey("Given a webhook that throttles the second chunk once", t, func() {
		var (
			mu    sync.Mutex
			posts []string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			var m struct {
				Content string `json:"content"`
			}
			_ = json.NewDecoder(r.Body).Decode(&m)
			posts = append(posts, m.Content)
			if len(posts) == 2 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		hook, err := notify.NewWebhookSink(srv.URL, notify.WithClient(srv.Client()), notify.WithRateLimit(1000, 10))
		So(err, ShouldBeNil)
		entries := make([]model.RankingEntry, 400)
		for i := range entries {
			entries[i] = model.RankingEntry{Rank: i + 1, PlayerID: "p", PlayerName: "プレイヤー", TotalPoints: 500 - i}
		}
		r := report.Format(entries, "2024-05")

		err = retry.WrapSink(hook, fast, nil).Notify(context.Background(), r)

		Convey("Then only the refused chunk is posted again", func() {
			So(err, ShouldBeNil)
			mu.Lock()
			defer mu.Unlock()
			So(posts, ShouldHaveLength, len(r.Chunks)+1)
			So(posts[1], ShouldEqual, posts[2])
			So(strings.Join(append([]string{posts[0]}, posts[2:]...), ""), ShouldEqual, r.Text)
		})
	})
}
