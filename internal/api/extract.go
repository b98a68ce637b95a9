package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/wxtodo/internal/items"
	"github.com/kalambet/wxtodo/internal/pipeline"
	"github.com/kalambet/wxtodo/internal/storage"
	"github.com/kalambet/wxtodo/internal/transcript"
	"github.com/kalambet/wxtodo/internal/wechat"
)

const maxBatchChats = 50

type extractRequest struct {
	ChatName string          `json:"chat_name"`
	Messages json.RawMessage `json:"messages"`
}

type extractResponse struct {
	Created []items.Item `json:"created"`
	Count   int          `json:"count"`
}

type batchRequest struct {
	ChatIDs         []string `json:"chat_ids"`
	LookbackHours   int      `json:"lookback_hours"`
	CooldownSeconds *int     `json:"cooldown_seconds"`
}

// decodeMessages requires a JSON array; null or an object is rejected.
func decodeMessages(raw json.RawMessage) ([]transcript.Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, errors.New("messages must be an array")
	}
	var msgs []transcript.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].Type == "" {
			msgs[i].Type = transcript.TypeText
		}
	}
	return msgs, nil
}

func handleExtract(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, errInvalidRequest, "invalid request body: %v", err)
			return
		}
		msgs, err := decodeMessages(req.Messages)
		if err != nil {
			httpError(w, http.StatusBadRequest, errInvalidRequest, "invalid messages: %v", err)
			return
		}

		created, err := deps.Extractor.ExtractFromChat(r.Context(), msgs, req.ChatName)
		if err != nil {
			slog.Warn("extract request failed", "chat", req.ChatName, "error", err)
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, extractResponse{Created: created, Count: len(created)})
	}
}

func handleBatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Batcher == nil {
			httpError(w, http.StatusServiceUnavailable, errAPI, "no message source configured; set wechat.db_dir")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, errInvalidRequest, "invalid request body: %v", err)
			return
		}
		ids := make([]string, 0, len(req.ChatIDs))
		for _, id := range req.ChatIDs {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			httpError(w, http.StatusBadRequest, errInvalidRequest, "chat_ids is required")
			return
		}
		if len(ids) > maxBatchChats {
			httpError(w, http.StatusBadRequest, errInvalidRequest, "at most %d chats per batch", maxBatchChats)
			return
		}

		lookback := req.LookbackHours
		if lookback <= 0 {
			lookback = deps.LookbackHours
		}
		cooldown := deps.Cooldown
		if req.CooldownSeconds != nil {
			cooldown = time.Duration(*req.CooldownSeconds) * time.Second
		}

		res, err := deps.Batcher.RunBatch(r.Context(), pipeline.BatchRequest{
			ChatIDs:       ids,
			LookbackHours: lookback,
			Cooldown:      cooldown,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("batch cancelled", "run_id", res.RunID, "created", res.TotalCreated)
				return
			}
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Runs == nil {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		runs, err := deps.Runs.ListBatchRuns(parseIntParam(r, "limit", 20, 100))
		if err != nil {
			httpError(w, http.StatusInternalServerError, errAPI, "failed to list batch runs: %v", err)
			return
		}
		if runs == nil {
			runs = []storage.BatchRun{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

type chatInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsGroup bool   `json:"is_group"`
}

func handleListChats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Chats == nil {
			httpError(w, http.StatusServiceUnavailable, errAPI, "no message source configured; set wechat.db_dir")
			return
		}

		var all []wechat.Contact
		kind := r.URL.Query().Get("kind")
		if kind == "" || kind == "groups" {
			groups, err := deps.Chats.Groups(r.Context())
			if err != nil {
				httpError(w, http.StatusInternalServerError, errAPI, "failed to list groups: %v", err)
				return
			}
			all = append(all, groups...)
		}
		if kind == "" || kind == "contacts" {
			contacts, err := deps.Chats.Contacts(r.Context())
			if err != nil {
				httpError(w, http.StatusInternalServerError, errAPI, "failed to list contacts: %v", err)
				return
			}
			all = append(all, contacts...)
		}

		out := make([]chatInfo, len(all))
		for i, c := range all {
			out[i] = chatInfo{ID: c.ID, Name: c.Name, IsGroup: c.IsGroup}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].IsGroup != out[j].IsGroup {
				return out[i].IsGroup
			}
			return out[i].Name < out[j].Name
		})
		writeJSON(w, http.StatusOK, out)
	}
}
