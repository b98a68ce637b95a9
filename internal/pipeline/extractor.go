// Package pipeline runs incremental action-item extraction for one chat or a
// batch of chats.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kalambet/wxtodo/internal/dedup"
	"github.com/kalambet/wxtodo/internal/extract"
	"github.com/kalambet/wxtodo/internal/items"
	"github.com/kalambet/wxtodo/internal/transcript"
)

// ItemStore is the subset of items.Store the pipeline needs.
type ItemStore interface {
	Snapshot() []items.Item
	Create(items.NewItem) (items.Item, error)
}

// Completer returns the model's raw reply for a rendered transcript.
type Completer interface {
	Complete(ctx context.Context, transcript string) (string, error)
}

// Extractor turns chat messages into new, de-duplicated action items.
type Extractor struct {
	store     ItemStore
	assembler *transcript.Assembler
	client    Completer
	dedup     *dedup.Engine

	mu    sync.Mutex
	gates map[string]*chatGate
}

// chatGate serializes extraction for one chat. refs counts holders and
// waiters; the entry is dropped when it reaches zero.
type chatGate struct {
	sem  *semaphore.Weighted
	refs int
}

// NewExtractor wires an Extractor. A nil engine uses dedup.DefaultThreshold.
func NewExtractor(store ItemStore, asm *transcript.Assembler, client Completer, engine *dedup.Engine) *Extractor {
	if engine == nil {
		engine = dedup.New(dedup.DefaultThreshold)
	}
	return &Extractor{
		store:     store,
		assembler: asm,
		client:    client,
		dedup:     engine,
		gates:     make(map[string]*chatGate),
	}
}

// acquire blocks until chat's gate is free. The returned func releases it.
func (e *Extractor) acquire(ctx context.Context, chat string) (func(), error) {
	e.mu.Lock()
	g, ok := e.gates[chat]
	if !ok {
		g = &chatGate{sem: semaphore.NewWeighted(1)}
		e.gates[chat] = g
	}
	g.refs++
	e.mu.Unlock()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		e.unref(chat, g)
		return nil, err
	}
	return func() {
		g.sem.Release(1)
		e.unref(chat, g)
	}, nil
}

func (e *Extractor) unref(chat string, g *chatGate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g.refs--
	if g.refs == 0 {
		delete(e.gates, chat)
	}
}

// ExtractFromChat extracts items from the text messages of chatName and
// returns only the newly created ones. Calls for the same chat are serialized;
// the model is not called when no unprocessed text message remains. Model failures return
// an error wrapping extract.ErrUnavailable.
func (e *Extractor) ExtractFromChat(ctx context.Context, messages []transcript.Message, chatName string) ([]items.Item, error) {
	if strings.TrimSpace(chatName) == "" {
		return nil, fmt.Errorf("%w: chat name is required", items.ErrValidation)
	}

	messages = transcript.TextOnly(messages)
	if len(messages) == 0 {
		slog.Debug("no text messages", "chat", chatName)
		return []items.Item{}, nil
	}

	release, err := e.acquire(ctx, chatName)
	if err != nil {
		return nil, err
	}
	defer release()

	tr := e.assembler.Assemble(messages, chatName, e.store.Snapshot())
	if tr.Empty() {
		slog.Debug("no unprocessed messages", "chat", chatName, "messages", len(messages))
		return []items.Item{}, nil
	}

	raw, err := e.client.Complete(ctx, tr.Text)
	if err != nil {
		return nil, err
	}

	candidates := extract.ParseCandidates(raw)
	created := []items.Item{}
	for _, c := range candidates {
		if dup, why := e.dedup.IsDuplicate(c, chatName, e.store.Snapshot()); dup {
			slog.Debug("skipping duplicate candidate", "chat", chatName, "title", c.Title, "reason", why)
			continue
		}
		it, err := e.store.Create(items.NewItem{
			Title:         c.Title,
			Description:   c.Description,
			Priority:      c.Priority,
			DueDate:       c.DueDate,
			Source:        items.SourceAIGenerated,
			SourceMessage: &tr.Text,
			GroupName:     &chatName,
			Sender:        c.Sender,
			MessageTime:   c.MessageTime,
		})
		if err != nil {
			slog.Warn("creating extracted item", "chat", chatName, "title", c.Title, "error", err)
			continue
		}
		created = append(created, it)
	}

	slog.Info("extraction complete",
		"chat", chatName,
		"lines", len(tr.Lines),
		"candidates", len(candidates),
		"created", len(created),
	)
	return created, nil
}
