package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/mimic/internal/dataset"
	"github.com/MikeSquared-Agency/mimic/internal/hermes"
	"github.com/MikeSquared-Agency/mimic/internal/store"
	"github.com/MikeSquared-Agency/mimic/internal/telegram"
	"github.com/MikeSquared-Agency/mimic/internal/telemetry"
)

// ExampleWriter persists kept conversations.
type ExampleWriter interface {
	WriteExample(ctx context.Context, ex store.Example) (uuid.UUID, error)
}

// Publisher announces finished runs.
type Publisher interface {
	Publish(subject string, data any) error
}

// Notifier posts run summaries for humans.
type Notifier interface {
	PostSummary(ctx context.Context, text string) (string, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

// Recorder receives pipeline metrics and starts build spans.
type Recorder interface {
	Tracer() trace.Tracer
	RecordChat(ctx context.Context, contact dataset.Contact, s dataset.Stats)
	RecordChatError(ctx context.Context)
	RecordRun(ctx context.Context, elapsed time.Duration)
}

// Runner converts a Telegram export into a JSONL dataset. Chats are processed
// by up to Workers goroutines; output order always follows the export.
type Runner struct {
	pipeline *dataset.Pipeline
	workers  int
	logger   *slog.Logger

	// Optional sinks.
	Store     ExampleWriter
	Publisher Publisher
	Notifier  Notifier
	Metrics   Recorder

	// Output labels the dataset in reports and events.
	Output string
}

// NewRunner creates a runner. workers below 1 means 1.
func NewRunner(p *dataset.Pipeline, workers int, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		pipeline: p,
		workers:  workers,
		logger:   logger,
		Metrics:  telemetry.Noop(),
	}
}

type chatResult struct {
	contact  dataset.Contact
	stats    dataset.Stats
	lines    [][]byte
	examples []store.Example
	skipped  bool
	errs     []error
	err      error // chat could not be decoded
}

// Run streams chats from src and writes one JSON line per kept conversation to
// out. A chat that cannot be decoded is reported and skipped. A malformed
// export, a write failure or cancellation stops the run; lines already written
// stay written.
func (r *Runner) Run(ctx context.Context, src io.Reader, out io.Writer) (*Report, error) {
	report := NewReport(r.pipeline.Options(), r.workers)
	report.Output = r.Output

	ctx, span := r.Metrics.Tracer().Start(ctx, "build.run",
		trace.WithAttributes(attribute.String("run.id", report.RunID.String())))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.logger.Info("build started", "run_id", report.RunID, "workers", r.workers)

	g, gctx := errgroup.WithContext(ctx)
	pending := make(chan chan chatResult, r.workers)
	g.Go(func() error {
		defer close(pending)
		return r.produce(gctx, src, report.RunID, pending)
	})

	enc := dataset.NewEncoder(out)
	var writeErr error
	for slot := range pending {
		res := <-slot
		if writeErr != nil {
			continue
		}
		if err := r.collect(ctx, report, enc, res); err != nil {
			writeErr = err
			cancel()
		}
	}
	readErr := g.Wait()
	report.Finish()
	r.Metrics.RecordRun(ctx, report.Elapsed())

	span.SetAttributes(
		attribute.Int("chats", report.Chats),
		attribute.Int("examples", report.Examples),
	)

	switch {
	case writeErr != nil:
		span.SetStatus(codes.Error, writeErr.Error())
		return report, writeErr
	case readErr != nil:
		span.SetStatus(codes.Error, readErr.Error())
		return report, readErr
	}

	if report.Examples == 0 {
		r.logger.Warn("build produced no examples",
			"chats", report.Chats,
			"conversations", report.Stats.Conversations,
			"dropped_short", report.Stats.DroppedShort,
			"dropped_group", report.Stats.DroppedGroup,
		)
	}
	r.logger.Info("build complete",
		"run_id", report.RunID,
		"chats", report.Chats,
		"examples", report.Examples,
		"errors", len(report.Errors),
		"elapsed", report.Elapsed().String(),
	)

	r.announce(ctx, report)
	return report, nil
}

// produce decodes chats in export order and hands each one to a worker. Every
// chat gets a result slot in pending, in order, before its worker starts.
func (r *Runner) produce(ctx context.Context, src io.Reader, runID uuid.UUID, pending chan<- chan chatResult) error {
	var workers errgroup.Group
	workers.SetLimit(r.workers)

	for chat, err := range telegram.Chats(src) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = workers.Wait()
			return ctxErr
		}
		var ce *telegram.ChatError
		if err != nil && !errors.As(err, &ce) {
			_ = workers.Wait()
			return fmt.Errorf("read export: %w", err)
		}

		slot := make(chan chatResult, 1)
		select {
		case pending <- slot:
		case <-ctx.Done():
			_ = workers.Wait()
			return ctx.Err()
		}

		if err != nil {
			slot <- chatResult{err: err}
			continue
		}
		workers.Go(func() error {
			slot <- r.processChat(ctx, runID, chat)
			return nil
		})
	}
	return workers.Wait()
}

func (r *Runner) processChat(ctx context.Context, runID uuid.UUID, chat *telegram.Chat) chatResult {
	res := chatResult{contact: chat.Contact}
	if !chat.Contact.Type.IsDialogue() {
		res.skipped = true
		return res
	}

	_, span := r.Metrics.Tracer().Start(ctx, "build.chat", trace.WithAttributes(
		attribute.Int64("chat.id", chat.Contact.ID),
		attribute.String("chat.type", string(chat.Contact.Type)),
	))
	defer span.End()

	for conv := range r.pipeline.Conversations(chat.Contact, chat.Messages(), &res.stats) {
		rec, err := r.pipeline.Format(conv)
		if err != nil {
			res.errs = append(res.errs, fmt.Errorf("chat %d: %w", chat.Contact.ID, err))
			continue
		}
		line, err := dataset.Marshal(rec)
		if err != nil {
			res.errs = append(res.errs, fmt.Errorf("chat %d: %w", chat.Contact.ID, err))
			continue
		}
		res.lines = append(res.lines, line)
		if r.Store != nil {
			res.examples = append(res.examples, store.NewExample(runID, conv, rec))
		}
	}

	span.SetAttributes(attribute.Int("examples", len(res.lines)))
	return res
}

// collect folds one chat result into the report and writes its lines. Only a
// write failure is returned.
func (r *Runner) collect(ctx context.Context, report *Report, enc *dataset.Encoder, res chatResult) error {
	if res.err != nil {
		r.logger.Warn("skipping unreadable chat", "error", res.err)
		report.AddError(res.err.Error())
		r.Metrics.RecordChatError(ctx)
		return nil
	}

	report.Chats++
	if res.skipped {
		report.ChatsSkipped++
		r.logger.Debug("skipping non-dialogue chat", "chat_id", res.contact.ID, "type", res.contact.Type)
		return nil
	}

	for _, err := range res.errs {
		r.logger.Error("format failed", "chat_id", res.contact.ID, "error", err)
		report.AddError(err.Error())
		r.Metrics.RecordChatError(ctx)
	}

	for _, line := range res.lines {
		if err := enc.WriteLine(line); err != nil {
			return err
		}
	}
	r.persist(ctx, report, res)

	report.Stats.Add(res.stats)
	report.Examples += len(res.lines)
	report.AddContact(res.contact, res.stats, len(res.lines))
	r.Metrics.RecordChat(ctx, res.contact, res.stats)

	r.logger.Info("chat processed",
		"chat_id", res.contact.ID,
		"name", res.contact.Name,
		"messages", res.stats.Messages,
		"conversations", res.stats.Conversations,
		"examples", len(res.lines),
	)
	return nil
}

func (r *Runner) persist(ctx context.Context, report *Report, res chatResult) {
	if r.Store == nil {
		return
	}
	for _, ex := range res.examples {
		if _, err := r.Store.WriteExample(ctx, ex); err != nil {
			r.logger.Error("persist failed", "chat_id", res.contact.ID, "error", err)
			report.AddError(fmt.Sprintf("persist chat %d: %v", res.contact.ID, err))
		}
	}
}

// announce publishes the run event and posts the summary. Failures are logged.
func (r *Runner) announce(ctx context.Context, report *Report) {
	if r.Publisher != nil {
		if err := r.Publisher.Publish(hermes.SubjectDatasetBuilt, report.Event()); err != nil {
			r.logger.Warn("failed to publish dataset event", "error", err)
		}
	}

	text := FormatSummary(report)
	if r.Notifier == nil {
		r.logger.Debug("build summary (no Slack configured)", "summary", text)
		return
	}
	ts, err := r.Notifier.PostSummary(ctx, text)
	if err != nil {
		r.logger.Warn("failed to post build summary to Slack", "error", err)
		return
	}
	if len(report.Contacts) == 0 {
		return
	}
	if err := r.Notifier.PostThread(ctx, ts, FormatContacts(report)); err != nil {
		r.logger.Warn("failed to post contact breakdown to Slack", "error", err)
	}
}
