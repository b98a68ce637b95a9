package wechat

import (
	"context"
	"time"

	"github.com/kalambet/wxtodo/internal/transcript"
)

// fetchLimit bounds how many messages one batch pass reads per chat.
const fetchLimit = 500

// Source adapts a Reader to the pipeline's chat source.
type Source struct {
	r *Reader
}

// NewSource wraps r.
func NewSource(r *Reader) *Source {
	return &Source{r: r}
}

// DisplayName returns the chat's remark, nickname or id.
func (s *Source) DisplayName(ctx context.Context, chatID string) (string, error) {
	return s.r.Name(ctx, chatID)
}

// FetchMessages returns messages of chatID since the given time, oldest first.
func (s *Source) FetchMessages(ctx context.Context, chatID string, since time.Time) ([]transcript.Message, error) {
	msgs, err := s.r.Messages(ctx, chatID, since, fetchLimit)
	if err != nil {
		return nil, err
	}
	out := make([]transcript.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, transcript.Message{
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Type:      m.Type,
		})
	}
	return out, nil
}
