package extract

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cast"

	"github.com/kalambet/wxtodo/internal/items"
)

// Candidate is a sanitized item proposed by the model.
type Candidate struct {
	Title       string
	Description string
	Priority    items.Priority
	DueDate     *string
	Sender      *string
	MessageTime *string
}

// ParseCandidates pulls a JSON array of items out of a model reply. Prose,
// code fences and trailing text around the array are ignored. Anything that
// cannot be read yields no candidates; elements without a usable title are
// skipped.
func ParseCandidates(raw string) []Candidate {
	start := strings.Index(raw, "[")
	if start == -1 {
		slog.Debug("model reply has no JSON array", "reply_len", len(raw))
		return nil
	}
	end := strings.LastIndex(raw, "]")
	if end <= start {
		slog.Debug("model reply has no JSON array", "reply_len", len(raw))
		return nil
	}

	var v any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		slog.Debug("model reply is not valid JSON", "error", err)
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}

	var out []Candidate
	for _, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		title, ok := obj["title"].(string)
		if !ok {
			continue
		}
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		out = append(out, Candidate{
			Title:       items.Truncate(title, items.MaxTitleLen),
			Description: items.Truncate(cast.ToString(obj["description"]), items.MaxDescriptionLen),
			Priority:    NormalizePriority(obj["priority"]),
			DueDate:     passThrough(obj["dueDate"]),
			Sender:      passThrough(obj["sender"]),
			MessageTime: passThrough(obj["messageTime"]),
		})
	}
	return out
}

// NormalizePriority maps model or user input onto a Priority, defaulting to
// medium.
func NormalizePriority(v any) items.Priority {
	switch strings.ToLower(strings.TrimSpace(cast.ToString(v))) {
	case "high", "高", "urgent", "紧急":
		return items.PriorityHigh
	case "low", "低":
		return items.PriorityLow
	default:
		return items.PriorityMedium
	}
}

// passThrough keeps strings and stringifies scalars. Objects, arrays and
// null become nil.
func passThrough(v any) *string {
	switch x := v.(type) {
	case string:
		return &x
	case float64, bool:
		s := cast.ToString(x)
		return &s
	default:
		return nil
	}
}
