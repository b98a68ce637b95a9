package items

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// memPersister is an in-memory Persister for tests.
type memPersister struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	loadErr error
	saveErr error
}

func (m *memPersister) Load() ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, false, m.loadErr
	}
	if m.data == nil {
		return nil, false, nil
	}
	return m.data, true, nil
}

func (m *memPersister) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

func strp(s string) *string { return &s }

// fixedClock returns a clock that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T) (*Store, *memPersister) {
	t.Helper()
	p := &memPersister{}
	s := Open(p, WithLocation(time.UTC), WithClock(fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	return s, p
}

func TestCreate_Defaults(t *testing.T) {
	s, p := newTestStore(t)

	it, err := s.Create(NewItem{Title: "  Buy laptops  "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if it.ID == "" {
		t.Error("ID is empty")
	}
	if it.Title != "Buy laptops" {
		t.Errorf("Title = %q, want trimmed", it.Title)
	}
	if it.Priority != PriorityMedium {
		t.Errorf("Priority = %q, want medium", it.Priority)
	}
	if it.Source != SourceManual {
		t.Errorf("Source = %q, want manual", it.Source)
	}
	if it.Completed {
		t.Error("Completed = true, want false")
	}
	if it.UpdatedAt.Before(it.CreatedAt) {
		t.Error("UpdatedAt before CreatedAt")
	}
	if p.saves != 1 {
		t.Errorf("saves = %d, want 1", p.saves)
	}
}

func TestCreate_EmptyTitle(t *testing.T) {
	s, p := newTestStore(t)

	_, err := s.Create(NewItem{Title: "   "})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if p.saves != 0 {
		t.Errorf("saves = %d, want 0", p.saves)
	}
}

func TestCreate_TruncatesLongFields(t *testing.T) {
	s, _ := newTestStore(t)

	it, err := s.Create(NewItem{
		Title:       strings.Repeat("标", 300),
		Description: strings.Repeat("d", 2000),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n := len([]rune(it.Title)); n != MaxTitleLen {
		t.Errorf("title length = %d, want %d", n, MaxTitleLen)
	}
	if n := len([]rune(it.Description)); n != MaxDescriptionLen {
		t.Errorf("description length = %d, want %d", n, MaxDescriptionLen)
	}
}

func TestCreate_UniqueIDs(t *testing.T) {
	s, _ := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		it, err := s.Create(NewItem{Title: "t"})
		if err != nil {
			t.Fatal(err)
		}
		if seen[it.ID] {
			t.Fatalf("duplicate id %s", it.ID)
		}
		seen[it.ID] = true
	}
}

func TestUpdate(t *testing.T) {
	s, p := newTestStore(t)
	it, _ := s.Create(NewItem{Title: "old", Priority: PriorityLow})

	high := PriorityHigh
	got, err := s.Update(it.ID, Patch{Title: strp("new"), Priority: &high, DueDate: strp("2024-02-01")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "new" || got.Priority != PriorityHigh {
		t.Errorf("got %+v", got)
	}
	if got.DueDate == nil || *got.DueDate != "2024-02-01" {
		t.Errorf("DueDate = %v", got.DueDate)
	}
	if !got.UpdatedAt.After(it.UpdatedAt) {
		t.Error("UpdatedAt not refreshed")
	}
	if p.saves != 2 {
		t.Errorf("saves = %d, want 2", p.saves)
	}

	cleared, err := s.Update(it.ID, Patch{DueDate: strp("")})
	if err != nil {
		t.Fatal(err)
	}
	if cleared.DueDate != nil {
		t.Errorf("DueDate = %q, want nil", *cleared.DueDate)
	}
}

func TestUpdate_Errors(t *testing.T) {
	s, _ := newTestStore(t)
	it, _ := s.Create(NewItem{Title: "x"})

	if _, err := s.Update("missing", Patch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Update(it.ID, Patch{Title: strp(" ")}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty title: err = %v, want ErrValidation", err)
	}
	bad := Priority("urgent")
	if _, err := s.Update(it.ID, Patch{Priority: &bad}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad priority: err = %v, want ErrValidation", err)
	}

	got, _ := s.Get(it.ID)
	if got.Title != "x" {
		t.Errorf("failed update changed state: %+v", got)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	a, _ := s.Create(NewItem{Title: "a"})
	b, _ := s.Create(NewItem{Title: "b"})

	if err := s.Delete(a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	list := s.List()
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("List = %+v", list)
	}
}

func TestToggleComplete(t *testing.T) {
	s, _ := newTestStore(t)
	it, _ := s.Create(NewItem{Title: "a"})

	got, err := s.ToggleComplete(it.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Completed {
		t.Error("Completed = false after toggle")
	}
	got, _ = s.ToggleComplete(it.ID)
	if got.Completed {
		t.Error("Completed = true after second toggle")
	}
	if _, err := s.ToggleComplete("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestList_Ordering(t *testing.T) {
	s, _ := newTestStore(t)
	done, _ := s.Create(NewItem{Title: "done high", Priority: PriorityHigh})
	s.ToggleComplete(done.ID)
	low, _ := s.Create(NewItem{Title: "low", Priority: PriorityLow})
	medLate, _ := s.Create(NewItem{Title: "medium late", DueDate: strp("2024-03-01")})
	medNone, _ := s.Create(NewItem{Title: "medium undated"})
	medEarly, _ := s.Create(NewItem{Title: "medium early", DueDate: strp("2024/2/1")})
	high, _ := s.Create(NewItem{Title: "high", Priority: PriorityHigh})

	want := []string{high.ID, medEarly.ID, medLate.ID, medNone.ID, low.ID, done.ID}
	got := s.List()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d = %q, want %q", i, got[i].Title, idTitle(got, want[i]))
		}
	}
}

func idTitle(list []Item, id string) string {
	for _, it := range list {
		if it.ID == id {
			return it.Title
		}
	}
	return ""
}

func TestList_CompletedNeverFirst(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 10; i++ {
		it, _ := s.Create(NewItem{Title: "x", Priority: []Priority{PriorityHigh, PriorityLow}[i%2]})
		if i%3 == 0 {
			s.ToggleComplete(it.ID)
		}
	}
	seenCompleted := false
	for _, it := range s.List() {
		if it.Completed {
			seenCompleted = true
		} else if seenCompleted {
			t.Fatal("incomplete item after a completed item")
		}
	}
}

func TestStatistics(t *testing.T) {
	s, _ := newTestStore(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.Create(NewItem{Title: "past", Priority: PriorityHigh, DueDate: strp("2024-05-01")})
	s.Create(NewItem{Title: "future", DueDate: strp("2024-07-01")})
	s.Create(NewItem{Title: "relative", Priority: PriorityLow, DueDate: strp("next friday")})
	s.Create(NewItem{Title: "exactly now", DueDate: strp("2024-06-01 12:00:00")})
	done, _ := s.Create(NewItem{Title: "done past", Priority: PriorityHigh, DueDate: strp("2024-01-01")})
	s.ToggleComplete(done.ID)

	st := s.Statistics(now)
	if st.Total != 5 || st.Completed != 1 || st.Pending != 4 {
		t.Errorf("counts = %+v", st)
	}
	if st.Overdue != 1 {
		t.Errorf("Overdue = %d, want 1", st.Overdue)
	}
	if st.ByPriority[PriorityHigh] != 1 || st.ByPriority[PriorityMedium] != 2 || st.ByPriority[PriorityLow] != 1 {
		t.Errorf("ByPriority = %v", st.ByPriority)
	}
}

func TestOpen_Reload(t *testing.T) {
	s, p := newTestStore(t)
	it, _ := s.Create(NewItem{Title: "persisted", GroupName: strp("team")})

	reloaded := Open(p)
	got, err := reloaded.Get(it.ID)
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if got.Title != "persisted" || !got.InGroup("team") {
		t.Errorf("reloaded item = %+v", got)
	}
}

func TestOpen_BadRecordStartsEmpty(t *testing.T) {
	cases := map[string]*memPersister{
		"corrupt":    {data: []byte("{not json")},
		"load error": {loadErr: errors.New("disk gone")},
		"missing":    {},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			s := Open(p)
			if n := len(s.List()); n != 0 {
				t.Errorf("len = %d, want 0", n)
			}
		})
	}
}

func TestOpen_NormalizesUnknownPriority(t *testing.T) {
	p := &memPersister{data: []byte(`[
		{"id":"a","title":"odd","priority":"critical","completed":false,"source":"manual"},
		{"id":"b","title":"fine","priority":"low","completed":false,"source":"manual"}
	]`)}
	s := Open(p)

	got, err := s.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Priority != PriorityMedium {
		t.Errorf("priority = %q, want medium", got.Priority)
	}
	st := s.Statistics(time.Now())
	if len(st.ByPriority) != 3 || st.ByPriority[PriorityMedium] != 1 || st.ByPriority[PriorityLow] != 1 {
		t.Errorf("ByPriority = %v", st.ByPriority)
	}
}

func TestSaveFailureIsSwallowed(t *testing.T) {
	p := &memPersister{saveErr: errors.New("read-only fs")}
	s := Open(p)

	it, err := s.Create(NewItem{Title: "kept"})
	if err != nil {
		t.Fatalf("Create returned %v, want nil despite save failure", err)
	}
	if _, err := s.Get(it.ID); err != nil {
		t.Errorf("item not kept in memory: %v", err)
	}
	h := s.PersistHealth()
	if h.Failures != 1 || h.LastError == "" {
		t.Errorf("PersistHealth = %+v", h)
	}
}

func TestPersistedJSONShape(t *testing.T) {
	s, p := newTestStore(t)
	s.Create(NewItem{Title: "shape", Sender: strp("Zhang"), MessageTime: strp("2024/1/1 10:00:00")})

	var raw []map[string]any
	if err := json.Unmarshal(p.data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "title", "priority", "dueDate", "sender", "messageTime", "groupName", "createdAt", "updatedAt"} {
		if _, ok := raw[0][key]; !ok {
			t.Errorf("missing key %q in persisted record", key)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Errorf("Truncate = %q", got)
	}
}
