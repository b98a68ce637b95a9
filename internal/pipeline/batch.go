package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/wxtodo/internal/items"
	"github.com/kalambet/wxtodo/internal/storage"
	"github.com/kalambet/wxtodo/internal/transcript"
)

// Defaults applied when a BatchRequest leaves a field zero.
const (
	DefaultLookbackHours = 24
	DefaultCooldown      = 5 * time.Second
)

// ChatSource resolves chats and fetches their recent messages.
type ChatSource interface {
	DisplayName(ctx context.Context, chatID string) (string, error)
	FetchMessages(ctx context.Context, chatID string, since time.Time) ([]transcript.Message, error)
}

// RunRecorder stores batch run history. May be nil.
type RunRecorder interface {
	StartBatchRun(run storage.BatchRun) error
	FinishBatchRun(id string, created int, errs map[string]string, status storage.BatchRunStatus) error
}

// BatchRequest selects the chats to process.
type BatchRequest struct {
	ChatIDs       []string
	LookbackHours int
	Cooldown      time.Duration
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	RunID        string            `json:"run_id"`
	TotalCreated int               `json:"total_created"`
	Created      []items.Item      `json:"created"`
	Errors       map[string]string `json:"errors"`
}

// Batcher runs extraction over several chats one after another.
type Batcher struct {
	extractor *Extractor
	source    ChatSource
	runs      RunRecorder
	now       func() time.Time
	wait      func(ctx context.Context, d time.Duration) error
}

// NewBatcher creates a Batcher. runs may be nil to skip run history.
func NewBatcher(ex *Extractor, src ChatSource, runs RunRecorder) *Batcher {
	return &Batcher{
		extractor: ex,
		source:    src,
		runs:      runs,
		now:       time.Now,
		wait:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RunBatch processes req.ChatIDs in order, pausing req.Cooldown between
// chats. A failing chat is recorded in Errors and the batch moves on.
// Cancelling ctx stops the batch and returns the partial result with ctx.Err().
func (b *Batcher) RunBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	lookback := req.LookbackHours
	if lookback <= 0 {
		lookback = DefaultLookbackHours
	}
	cooldown := req.Cooldown
	if cooldown < 0 {
		cooldown = 0
	}

	res := BatchResult{
		RunID:   uuid.New().String(),
		Created: []items.Item{},
		Errors:  map[string]string{},
	}
	started := b.now()
	since := started.Add(-time.Duration(lookback) * time.Hour)
	b.startRun(res.RunID, started, req.ChatIDs, lookback)

	var runErr error
	for i, id := range req.ChatIDs {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		created, skipped, err := b.processChat(ctx, id, since)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				runErr = err
				break
			}
			slog.Warn("batch: chat failed", "chat_id", id, "error", err)
			res.Errors[id] = err.Error()
		}
		res.Created = append(res.Created, created...)

		if !skipped && i < len(req.ChatIDs)-1 {
			if err := b.wait(ctx, cooldown); err != nil {
				runErr = err
				break
			}
		}
	}
	res.TotalCreated = len(res.Created)

	status := storage.BatchCompleted
	switch {
	case runErr != nil:
		status = storage.BatchCancelled
	case len(res.Errors) > 0:
		status = storage.BatchPartial
	}
	b.finishRun(res, status)

	slog.Info("batch complete",
		"run_id", res.RunID,
		"chats", len(req.ChatIDs),
		"created", res.TotalCreated,
		"failed", len(res.Errors),
		"status", status,
	)
	return res, runErr
}

// processChat reports skipped when the chat had no text messages in the
// window, in which case no cooldown is owed.
func (b *Batcher) processChat(ctx context.Context, id string, since time.Time) (created []items.Item, skipped bool, err error) {
	name, err := b.source.DisplayName(ctx, id)
	if err != nil {
		return nil, false, err
	}
	msgs, err := b.source.FetchMessages(ctx, id, since)
	if err != nil {
		return nil, false, err
	}
	msgs = transcript.TextOnly(msgs)
	if len(msgs) == 0 {
		slog.Debug("batch: no text messages", "chat_id", id)
		return nil, true, nil
	}
	created, err = b.extractor.ExtractFromChat(ctx, msgs, name)
	return created, false, err
}

func (b *Batcher) startRun(id string, started time.Time, chats []string, lookback int) {
	if b.runs == nil {
		return
	}
	err := b.runs.StartBatchRun(storage.BatchRun{
		ID:          id,
		StartedAt:   started,
		ChatIDs:     chats,
		LookbackHrs: lookback,
		Status:      storage.BatchRunning,
	})
	if err != nil {
		slog.Warn("batch: recording run start", "run_id", id, "error", err)
	}
}

func (b *Batcher) finishRun(res BatchResult, status storage.BatchRunStatus) {
	if b.runs == nil {
		return
	}
	if err := b.runs.FinishBatchRun(res.RunID, res.TotalCreated, res.Errors, status); err != nil {
		slog.Warn("batch: recording run finish", "run_id", res.RunID, "error", err)
	}
}
