package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kalambet/wxtodo/internal/items"
)

type mockCompleter struct {
	reply  string
	err    error
	prompt string
}

func (m *mockCompleter) Complete(_ context.Context, prompt string) (string, error) {
	m.prompt = prompt
	return m.reply, m.err
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(nil, "[2024/1/1 10:00:00] [Zhang]: buy laptops")
	for _, want := range []string{
		"task assignment",
		"purchase / request",
		`"messageTime"`,
		"output [] and nothing else",
		"[Transcript]\n[2024/1/1 10:00:00] [Zhang]: buy laptops",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	custom := BuildPrompt([]Category{{Name: "shopping"}}, "x")
	if !strings.Contains(custom, "- shopping\n") || strings.Contains(custom, "task assignment") {
		t.Errorf("custom categories not rendered:\n%s", custom)
	}
}

func TestLoadCategories(t *testing.T) {
	dir := t.TempDir()

	got, err := LoadCategories(filepath.Join(dir, "missing.yaml"))
	if err != nil || len(got) != len(DefaultCategories) {
		t.Fatalf("missing file: got %d, err %v", len(got), err)
	}

	path := filepath.Join(dir, "categories.yaml")
	os.WriteFile(path, []byte(`categories:
  - name: invoice
    description: an invoice must be paid
    examples: ["请付款"]
  - name: travel
`), 0o644)
	got, err = LoadCategories(path)
	if err != nil {
		t.Fatalf("LoadCategories: %v", err)
	}
	if len(got) != 2 || got[0].Name != "invoice" || got[0].Examples[0] != "请付款" {
		t.Errorf("got %+v", got)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("categories: [name: {"), 0o644)
	if _, err := LoadCategories(bad); err == nil {
		t.Error("malformed file should fail")
	}

	noName := filepath.Join(dir, "noname.yaml")
	os.WriteFile(noName, []byte("categories:\n  - description: x\n"), 0o644)
	if _, err := LoadCategories(noName); err == nil {
		t.Error("entry without name should fail")
	}
}

func TestClientComplete(t *testing.T) {
	m := &mockCompleter{reply: "[]"}
	c := NewClient(m, nil)
	raw, err := c.Complete(context.Background(), "[2024/1/1 10:00:00] [Li]: hi")
	if err != nil || raw != "[]" {
		t.Fatalf("Complete = %q, %v", raw, err)
	}
	if !strings.Contains(m.prompt, "[Li]: hi") {
		t.Error("transcript not in prompt")
	}

	m.err = errors.New("connection refused")
	_, err = c.Complete(context.Background(), "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestParseCandidates_Fenced(t *testing.T) {
	raw := "Sure! Here you go:\n```json\n[{\"title\":\"  Buy laptops \",\"description\":\"ten units\",\"priority\":\"HIGH\",\"dueDate\":\"2024-01-05\",\"sender\":\"Zhang\",\"messageTime\":\"2024/1/1 10:00:00\"}]\n```\nLet me know."
	got := ParseCandidates(raw)
	if len(got) != 1 {
		t.Fatalf("got %d candidates", len(got))
	}
	c := got[0]
	if c.Title != "Buy laptops" || c.Priority != items.PriorityHigh || c.Description != "ten units" {
		t.Errorf("candidate = %+v", c)
	}
	if c.DueDate == nil || *c.DueDate != "2024-01-05" || *c.Sender != "Zhang" || *c.MessageTime != "2024/1/1 10:00:00" {
		t.Errorf("pass-through fields = %+v", c)
	}
}

func TestParseCandidates_Malformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"no array here",
		"] backwards [",
		"[not json]",
		`{"title":"object, not array"}`,
		`[1, 2, "x", null]`,
		`[{"title": ""}, {"title": "   "}, {"title": 5}, {"description": "no title"}]`,
	} {
		if got := ParseCandidates(raw); len(got) != 0 {
			t.Errorf("ParseCandidates(%q) = %+v, want none", raw, got)
		}
	}
}

func TestParseCandidates_Coercion(t *testing.T) {
	raw := `[
		{"title":"a","description":42,"priority":"紧急","dueDate":20240105,"sender":{"x":1},"messageTime":null},
		{"title":"b","priority":"weird","dueDate":true},
		{"title":"c","priority":"低","description":null}
	]`
	got := ParseCandidates(raw)
	if len(got) != 3 {
		t.Fatalf("got %d candidates", len(got))
	}
	if got[0].Description != "42" || got[0].Priority != items.PriorityHigh {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[0].DueDate == nil || *got[0].DueDate != "20240105" {
		t.Errorf("numeric dueDate = %v", got[0].DueDate)
	}
	if got[0].Sender != nil || got[0].MessageTime != nil {
		t.Error("object and null should pass through as nil")
	}
	if got[1].Priority != items.PriorityMedium || got[1].DueDate == nil || *got[1].DueDate != "true" {
		t.Errorf("got[1] = %+v", got[1])
	}
	if got[2].Priority != items.PriorityLow || got[2].Description != "" {
		t.Errorf("got[2] = %+v", got[2])
	}
}

func TestParseCandidates_LengthBounds(t *testing.T) {
	long := strings.Repeat("买", 300)
	longer := strings.Repeat("x", 1500)
	got := ParseCandidates(`[{"title":"` + long + `","description":"` + longer + `"}]`)
	if len(got) != 1 {
		t.Fatalf("got %d", len(got))
	}
	if n := utf8.RuneCountInString(got[0].Title); n != items.MaxTitleLen {
		t.Errorf("title runes = %d", n)
	}
	if n := utf8.RuneCountInString(got[0].Description); n != items.MaxDescriptionLen {
		t.Errorf("description runes = %d", n)
	}
}

func TestParseCandidates_DescriptionNotTrimmed(t *testing.T) {
	got := ParseCandidates(`[{"title":"Buy laptops","description":"  ten units  "}]`)
	if len(got) != 1 || got[0].Description != "  ten units  " {
		t.Errorf("candidates = %+v", got)
	}
}
