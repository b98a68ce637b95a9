package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/wxtodo/internal/items"
)

// filterItems applies the status and group query filters to a display-ordered list.
func filterItems(list []items.Item, status, group string) []items.Item {
	out := make([]items.Item, 0, len(list))
	for _, it := range list {
		switch status {
		case "pending":
			if it.Completed {
				continue
			}
		case "completed":
			if !it.Completed {
				continue
			}
		}
		if group != "" && !it.InGroup(group) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func handleListItems(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status := q.Get("status")
		switch status {
		case "", "all", "pending", "completed":
		default:
			httpError(w, http.StatusBadRequest, errInvalidRequest, "status must be one of all, pending, completed")
			return
		}

		list := filterItems(deps.Items.List(), status, q.Get("group"))
		if limit := parseIntParam(r, "limit", 0, 0); limit > 0 && len(list) > limit {
			list = list[:limit]
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleCreateItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var in items.NewItem
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, http.StatusBadRequest, errInvalidRequest, "invalid request body: %v", err)
			return
		}
		if in.Priority != "" && !in.Priority.Valid() {
			httpError(w, http.StatusBadRequest, errInvalidRequest, "unknown priority %q", in.Priority)
			return
		}
		// Only the extractor produces ai-generated items.
		in.Source = items.SourceManual

		it, err := deps.Items.Create(in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, it)
	}
}

func handleGetItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		it, err := deps.Items.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

func handleUpdateItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var p items.Patch
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, errInvalidRequest, "invalid request body: %v", err)
			return
		}

		it, err := deps.Items.Update(chi.URLParam(r, "id"), p)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

func handleDeleteItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Items.Delete(chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleToggleItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		it, err := deps.Items.ToggleComplete(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

func handleItemStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Items.Statistics(deps.Now()))
	}
}
