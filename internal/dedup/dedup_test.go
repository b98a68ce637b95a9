package dedup

import (
	"math"
	"testing"

	"github.com/kalambet/wxtodo/internal/extract"
	"github.com/kalambet/wxtodo/internal/items"
)

func strp(s string) *string { return &s }

func office(title, desc string, sender, at *string) items.Item {
	return items.Item{Title: title, Description: desc, GroupName: strp("Office"), Sender: sender, MessageTime: at}
}

func TestIsDuplicate_SameMessage(t *testing.T) {
	e := New(0)
	existing := []items.Item{office("Buy laptops", "", strp("Zhang"), strp("2024/1/1 10:00:00"))}

	c := extract.Candidate{Title: "Purchase laptops", Sender: strp("Zhang"), MessageTime: strp("2024/1/1 10:00:00")}
	dup, why := e.IsDuplicate(c, "Office", existing)
	if !dup || why != ReasonSameMessage {
		t.Errorf("got %v %q, want same_message", dup, why)
	}

	c.MessageTime = nil
	if dup, _ := e.IsDuplicate(c, "Office", existing); dup {
		t.Error("nil messageTime must not match on provenance")
	}
}

func TestIsDuplicate_SameTitle(t *testing.T) {
	e := New(0)
	existing := []items.Item{office("Book room", "", nil, nil)}

	if dup, why := e.IsDuplicate(extract.Candidate{Title: "Book room"}, "Office", existing); !dup || why != ReasonSameTitle {
		t.Errorf("got %v %q, want same_title", dup, why)
	}
	if dup, _ := e.IsDuplicate(extract.Candidate{Title: "book room"}, "Office", existing); dup {
		t.Error("title match must be case-sensitive")
	}
}

func TestIsDuplicate_SimilarDescription(t *testing.T) {
	e := New(DefaultThreshold)
	existing := []items.Item{office("Buy laptops", "need ten laptops for office", nil, nil)}

	c := extract.Candidate{Title: "Order computers", Description: "need 10 laptops office"}
	if dup, why := e.IsDuplicate(c, "Office", existing); !dup || why != ReasonSimilarDescription {
		t.Errorf("got %v %q, want similar_description", dup, why)
	}
}

func TestIsDuplicate_ShortDescriptionsNeverFuzzy(t *testing.T) {
	e := New(0)
	existing := []items.Item{office("A", "abcdefghij", nil, nil)}
	c := extract.Candidate{Title: "B", Description: "abcdefghij"}
	if dup, _ := e.IsDuplicate(c, "Office", existing); dup {
		t.Error("10-rune descriptions must not be compared")
	}
}

func TestIsDuplicate_OtherGroupIgnored(t *testing.T) {
	e := New(0)
	existing := []items.Item{
		{Title: "Buy laptops", GroupName: strp("Family"), Sender: strp("Zhang"), MessageTime: strp("2024/1/1 10:00:00")},
		{Title: "Buy laptops"},
	}
	c := extract.Candidate{Title: "Buy laptops", Sender: strp("Zhang"), MessageTime: strp("2024/1/1 10:00:00")}
	if dup, _ := e.IsDuplicate(c, "Office", existing); dup {
		t.Error("items from other chats must not match")
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 0},
		{"abc", "abc", 1},
		{"abc", "cba", 1},
		{"ab", "cd", 0},
		{"aab", "abb", 1},
		{"need ten laptops for office", "need 10 laptops office", 13.0 / 16.0},
	}
	for _, tt := range tests {
		if got := Jaccard(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNewThresholdFallback(t *testing.T) {
	for _, th := range []float64{0, -1, 1.5} {
		if e := New(th); e.threshold != DefaultThreshold {
			t.Errorf("New(%v).threshold = %v", th, e.threshold)
		}
	}
	if e := New(0.5); e.threshold != 0.5 {
		t.Errorf("threshold = %v", e.threshold)
	}
}
