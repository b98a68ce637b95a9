package items

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an item id is not in the store.
	ErrNotFound = errors.New("item not found")
	// ErrValidation is returned when caller-supplied input is malformed.
	ErrValidation = errors.New("validation failed")
)

const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 1000
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for display: high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Valid reports whether p is one of the three known priorities.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

type Source string

const (
	SourceManual      Source = "manual"
	SourceAIGenerated Source = "ai-generated"
)

// Item is a persisted action item.
type Item struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Priority      Priority  `json:"priority"`
	DueDate       *string   `json:"dueDate"`
	Completed     bool      `json:"completed"`
	Source        Source    `json:"source"`
	SourceMessage *string   `json:"sourceMessage"`
	GroupName     *string   `json:"groupName"`
	Sender        *string   `json:"sender"`
	MessageTime   *string   `json:"messageTime"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// InGroup reports whether the item was extracted from the named chat.
func (it Item) InGroup(group string) bool {
	return it.GroupName != nil && *it.GroupName == group
}

// NewItem carries the caller-supplied fields for Create.
type NewItem struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Priority      Priority `json:"priority"`
	DueDate       *string  `json:"dueDate"`
	Source        Source   `json:"source"`
	SourceMessage *string  `json:"sourceMessage"`
	GroupName     *string  `json:"groupName"`
	Sender        *string  `json:"sender"`
	MessageTime   *string  `json:"messageTime"`
}

// Patch holds the fields to change in Update. Nil fields are left alone.
type Patch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Priority    *Priority `json:"priority"`
	DueDate     *string   `json:"dueDate"`
	Completed   *bool     `json:"completed"`
}

// Stats summarises the collection.
type Stats struct {
	Total      int              `json:"total"`
	Completed  int              `json:"completed"`
	Pending    int              `json:"pending"`
	Overdue    int              `json:"overdue"`
	ByPriority map[Priority]int `json:"byPriority"`
}

// PersistHealth describes the outcome of write-through persistence.
type PersistHealth struct {
	Failures  int       `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
	LastSaved time.Time `json:"last_saved,omitempty"`
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
