// Package extract asks a language model for action items in a chat transcript
// and turns its free-form reply into validated candidates.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/wxtodo/internal/llm"
)

// ErrUnavailable is returned when the model cannot be reached or fails.
var ErrUnavailable = errors.New("extraction unavailable")

// Client sends extraction prompts to a model.
type Client struct {
	completer  llm.Completer
	categories []Category
}

// NewClient creates a Client. Nil categories select DefaultCategories.
func NewClient(c llm.Completer, categories []Category) *Client {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &Client{completer: c, categories: categories}
}

// Complete returns the model's raw reply for transcript. It does not retry.
func (c *Client) Complete(ctx context.Context, transcript string) (string, error) {
	raw, err := c.completer.Complete(ctx, BuildPrompt(c.categories, transcript))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return raw, nil
}
