package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxglance/internal/instrumentation"
	"github.com/teemow/inboxglance/internal/logging"
)

// DefaultLimit is the number of messages fetched per inbox.
const DefaultLimit = 5

// gmailUser is the authenticated mailbox.
const gmailUser = "me"

// Fetcher reads the most recent messages of a mailbox.
type Fetcher struct {
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	opts    []option.ClientOption
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithLogger sets the logger used for decode warnings.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics records Gmail calls and decode failures on m.
func WithMetrics(m *instrumentation.Metrics) FetcherOption {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithClientOptions appends options used when building the Gmail service,
// e.g. option.WithEndpoint for a test server.
func WithClientOptions(opts ...option.ClientOption) FetcherOption {
	return func(f *Fetcher) {
		f.opts = append(f.opts, opts...)
	}
}

// NewFetcher returns a Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewService builds a Gmail service authenticated by ts.
func NewService(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*gmail.Service, error) {
	all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := gmail.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// FetchRecent returns up to limit of the newest messages in the mailbox
// authenticated by ts, in the order the list call returned them.
// limit <= 0 means DefaultLimit.
func (f *Fetcher) FetchRecent(ctx context.Context, ts oauth2.TokenSource, limit int) ([]MessageRecord, error) {
	svc, err := NewService(ctx, ts, f.opts...)
	if err != nil {
		return nil, err
	}
	return f.fetchRecent(ctx, svc.Users, limit)
}

func (f *Fetcher) fetchRecent(ctx context.Context, users *gmail.UsersService, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	ids, err := f.listIDs(ctx, users, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []MessageRecord{}, nil
	}

	// Results land by index so the output keeps list order whatever the
	// completion order. The first failure cancels the rest.
	records := make([]MessageRecord, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			msg, err := f.getMessage(gctx, users, id)
			if err != nil {
				return err
			}
			records[i] = f.extract(gctx, msg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return records, nil
}

func (f *Fetcher) listIDs(ctx context.Context, users *gmail.UsersService, limit int) ([]string, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationList,
		attribute.Int(instrumentation.SpanAttrLimit, limit))
	defer span.End()

	start := time.Now()
	res, err := users.Messages.List(gmailUser).MaxResults(int64(limit)).Context(ctx).Do()
	f.record(ctx, instrumentation.OperationList, err, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, m.Id)
	}
	span.SetAttributes(attribute.Int(instrumentation.SpanAttrCount, len(ids)))
	instrumentation.SetSpanSuccess(span)
	return ids, nil
}

func (f *Fetcher) getMessage(ctx context.Context, users *gmail.UsersService, id string) (*gmail.Message, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet,
		attribute.String(instrumentation.SpanAttrMessageID, id))
	defer span.End()

	start := time.Now()
	msg, err := users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
	f.record(ctx, instrumentation.OperationGet, err, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	instrumentation.SetSpanSuccess(span)
	return msg, nil
}

// extract runs Extract and turns decode errors into warnings.
func (f *Fetcher) extract(ctx context.Context, msg *gmail.Message) MessageRecord {
	rec, err := Extract(msg)
	if err == nil {
		return rec
	}

	failures := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		failures = joined.Unwrap()
	}
	for _, failure := range failures {
		var de *DecodeError
		part := "unknown"
		if errors.As(failure, &de) {
			part = de.Part
		}
		f.metrics.RecordBodyDecodeFailure(ctx, part)
		f.logger.Warn("message body is not valid base64, leaving it empty",
			logging.Operation("gmail.extract"),
			slog.String("message_id", msg.Id),
			slog.String("part", part),
			logging.Err(failure))
	}
	return rec
}

func (f *Fetcher) record(ctx context.Context, operation string, err error, d time.Duration) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	f.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, "", d)
}
