package items

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Persister is the durable mirror of the collection. Load returns ok=false
// when nothing has been saved yet.
type Persister interface {
	Load() (data []byte, ok bool, err error)
	Save(data []byte) error
}

// Store owns the action item collection. The in-memory slice is
// authoritative; every mutation rewrites the whole collection through the
// Persister.
type Store struct {
	mu      sync.RWMutex
	items   []Item
	persist Persister
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
	health  PersistHealth
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the zone used to read due dates without an offset.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides time.Now (used by tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the collection once from p. A bad or missing
// record yields an empty collection; it never fails startup.
func Open(p Persister, opts ...Option) *Store {
	s := &Store{
		persist: p,
		loc:     time.Local,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	if p == nil {
		return s
	}
	data, ok, err := p.Load()
	if err != nil {
		s.logger.Warn("loading action items failed, starting empty", "error", err)
		return s
	}
	if !ok || len(data) == 0 {
		return s
	}
	var loaded []Item
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("action item record is corrupt, starting empty", "error", err)
		return s
	}
	for i := range loaded {
		if !loaded[i].Priority.Valid() {
			s.logger.Warn("unknown priority in stored item, using medium", "id", loaded[i].ID, "priority", loaded[i].Priority)
			loaded[i].Priority = PriorityMedium
		}
	}
	s.items = loaded
	return s
}

// List returns all items in display order.
func (s *Store) List() []Item {
	s.mu.RLock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	s.mu.RUnlock()

	SortForDisplay(out, s.loc)
	return out
}

// Snapshot returns a copy of the collection in insertion order.
func (s *Store) Snapshot() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Get(id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.items[i], nil
}

// Create assigns an id and timestamps, then appends and persists.
func (s *Store) Create(in NewItem) (Item, error) {
	title := Truncate(strings.TrimSpace(in.Title), MaxTitleLen)
	if title == "" {
		return Item{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	priority := in.Priority
	if !priority.Valid() {
		priority = PriorityMedium
	}
	source := in.Source
	if source != SourceAIGenerated {
		source = SourceManual
	}

	now := s.now()
	it := Item{
		ID:            uuid.New().String(),
		Title:         title,
		Description:   Truncate(in.Description, MaxDescriptionLen),
		Priority:      priority,
		DueDate:       in.DueDate,
		Source:        source,
		SourceMessage: in.SourceMessage,
		GroupName:     in.GroupName,
		Sender:        in.Sender,
		MessageTime:   in.MessageTime,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, it)
	s.saveLocked()
	return it, nil
}

// Update merges the non-nil fields of p over the item.
func (s *Store) Update(id string, p Patch) (Item, error) {
	var title string
	if p.Title != nil {
		title = Truncate(strings.TrimSpace(*p.Title), MaxTitleLen)
		if title == "" {
			return Item{}, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return Item{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, *p.Priority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	it := s.items[i]
	if p.Title != nil {
		it.Title = title
	}
	if p.Description != nil {
		it.Description = Truncate(*p.Description, MaxDescriptionLen)
	}
	if p.Priority != nil {
		it.Priority = *p.Priority
	}
	if p.DueDate != nil {
		due := *p.DueDate
		if strings.TrimSpace(due) == "" {
			it.DueDate = nil
		} else {
			it.DueDate = &due
		}
	}
	if p.Completed != nil {
		it.Completed = *p.Completed
	}
	it.UpdatedAt = s.touch(it.CreatedAt)

	s.items[i] = it
	s.saveLocked()
	return it, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.saveLocked()
	return nil
}

// ToggleComplete flips the completed flag and returns the updated item.
func (s *Store) ToggleComplete(id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.items[i].Completed = !s.items[i].Completed
	s.items[i].UpdatedAt = s.touch(s.items[i].CreatedAt)
	s.saveLocked()
	return s.items[i], nil
}

// Statistics counts items as of now. Overdue only includes pending items
// whose due date parses to a time strictly before now.
func (s *Store) Statistics(now time.Time) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Total: len(s.items),
		ByPriority: map[Priority]int{
			PriorityHigh:   0,
			PriorityMedium: 0,
			PriorityLow:    0,
		},
	}
	for _, it := range s.items {
		if it.Completed {
			st.Completed++
			continue
		}
		st.Pending++
		st.ByPriority[it.Priority]++
		if due, ok := dueOf(it, s.loc); ok && due.Before(now) {
			st.Overdue++
		}
	}
	return st
}

// PersistHealth reports write-through failures since startup.
func (s *Store) PersistHealth() PersistHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// touch returns a fresh UpdatedAt that never precedes createdAt.
func (s *Store) touch(createdAt time.Time) time.Time {
	now := s.now()
	if now.Before(createdAt) {
		return createdAt
	}
	return now
}

// saveLocked writes the whole collection. Failures are logged and counted;
// the in-memory copy stays authoritative.
func (s *Store) saveLocked() {
	if s.persist == nil {
		return
	}
	data, err := json.Marshal(s.items)
	if err == nil {
		err = s.persist.Save(data)
	}
	if err != nil {
		s.health.Failures++
		s.health.LastError = err.Error()
		s.logger.Warn("persisting action items failed; in-memory copy kept", "error", err, "failures", s.health.Failures)
		return
	}
	s.health.LastSaved = s.now()
}

// SortForDisplay orders items: incomplete first, then priority rank, then
// due date ascending (dated before undated), then creation time and id.
func SortForDisplay(list []Item, loc *time.Location) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		da, okA := dueOf(a, loc)
		db, okB := dueOf(b, loc)
		switch {
		case okA && okB && !da.Equal(db):
			return da.Before(db)
		case okA != okB:
			return okA
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
