package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/wxtodo/internal/items"
	"github.com/kalambet/wxtodo/internal/pipeline"
	"github.com/kalambet/wxtodo/internal/storage"
	"github.com/kalambet/wxtodo/internal/transcript"
	"github.com/kalambet/wxtodo/internal/wechat"
)

// ChatExtractor runs one extraction over a chat's messages.
type ChatExtractor interface {
	ExtractFromChat(ctx context.Context, messages []transcript.Message, chatName string) ([]items.Item, error)
}

// BatchRunner processes several chats in one call.
type BatchRunner interface {
	RunBatch(ctx context.Context, req pipeline.BatchRequest) (pipeline.BatchResult, error)
}

// RunLister returns recorded batch runs, newest first.
type RunLister interface {
	ListBatchRuns(limit int) ([]storage.BatchRun, error)
}

// ChatLister enumerates chats known to the message source.
type ChatLister interface {
	Groups(ctx context.Context) ([]wechat.Contact, error)
	Contacts(ctx context.Context) ([]wechat.Contact, error)
}

// Deps wires the HTTP handler. Batcher and Chats are nil when no message
// source is configured; Runs may be nil.
type Deps struct {
	Items     *items.Store
	Extractor ChatExtractor
	Batcher   BatchRunner
	Runs      RunLister
	Chats     ChatLister
	Token     string

	// Applied when a batch request omits them.
	LookbackHours int
	Cooldown      time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewHandler returns the HTTP API. /health is public; every other route
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/items", handleListItems(deps))
		r.Post("/items", handleCreateItem(deps))
		r.Get("/items/stats", handleItemStats(deps))
		r.Get("/items/{id}", handleGetItem(deps))
		r.Patch("/items/{id}", handleUpdateItem(deps))
		r.Delete("/items/{id}", handleDeleteItem(deps))
		r.Post("/items/{id}/toggle", handleToggleItem(deps))

		r.Post("/extract", handleExtract(deps))
		r.Post("/batch", handleBatch(deps))
		r.Get("/batch/runs", handleListRuns(deps))
		r.Get("/chats", handleListChats(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok"}
		if deps.Items != nil {
			h := deps.Items.PersistHealth()
			if h.Failures > 0 {
				resp["status"] = "degraded"
			}
			resp["persistence"] = h
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
