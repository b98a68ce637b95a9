package transcript

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kalambet/wxtodo/internal/items"
)

func strp(s string) *string { return &s }

var shanghai = time.FixedZone("CST", 8*3600)

func msg(sender, content string, h, m, s int) Message {
	return Message{
		Sender:    sender,
		Content:   content,
		Timestamp: time.Date(2024, 1, 1, h, m, s, 0, shanghai),
		Type:      TypeText,
	}
}

func TestFormatTime(t *testing.T) {
	a := NewAssembler(shanghai)
	got := a.FormatTime(time.Date(2024, 1, 1, 9, 5, 3, 0, time.UTC))
	if got != "2024/1/1 17:05:03" {
		t.Errorf("FormatTime = %q", got)
	}
}

func TestAssemble_RendersAllWhenStoreEmpty(t *testing.T) {
	a := NewAssembler(shanghai)
	tr := a.Assemble([]Message{
		msg("Zhang", "we need ten laptops", 10, 0, 0),
		msg("Li", "ok, by friday", 10, 1, 30),
	}, "Office", nil)

	want := "[2024/1/1 10:00:00] [Zhang]: we need ten laptops\n[2024/1/1 10:01:30] [Li]: ok, by friday"
	if tr.Text != want {
		t.Errorf("Text =\n%s\nwant\n%s", tr.Text, want)
	}
	if len(tr.Lines) != 2 || tr.Lines[1].Time != "2024/1/1 10:01:30" {
		t.Errorf("Lines = %+v", tr.Lines)
	}
}

func TestAssemble_DropsProcessedMessages(t *testing.T) {
	a := NewAssembler(shanghai)
	existing := []items.Item{
		{GroupName: strp("Office"), Sender: strp("Zhang"), MessageTime: strp("2024/1/1 10:00:00")},
		// Same sender and time but another group: must not filter.
		{GroupName: strp("Family"), Sender: strp("Li"), MessageTime: strp("2024/1/1 10:01:30")},
		// Missing provenance never filters.
		{GroupName: strp("Office"), Sender: strp("Wang")},
	}
	tr := a.Assemble([]Message{
		msg("Zhang", "we need ten laptops", 10, 0, 0),
		msg("Li", "ok, by friday", 10, 1, 30),
		msg("Wang", "noted", 10, 2, 0),
	}, "Office", existing)

	if len(tr.Lines) != 2 {
		t.Fatalf("got %d lines, want 2: %+v", len(tr.Lines), tr.Lines)
	}
	if tr.Lines[0].Sender != "Li" || tr.Lines[1].Sender != "Wang" {
		t.Errorf("unexpected survivors: %+v", tr.Lines)
	}
}

func TestAssemble_AllFiltered(t *testing.T) {
	a := NewAssembler(shanghai)
	existing := []items.Item{
		{GroupName: strp("Office"), Sender: strp("Zhang"), MessageTime: strp("2024/1/1 10:00:00")},
	}
	tr := a.Assemble([]Message{msg("Zhang", "x", 10, 0, 0)}, "Office", existing)
	if !tr.Empty() || tr.Text != "" {
		t.Errorf("expected empty transcript, got %+v", tr)
	}

	if !a.Assemble(nil, "Office", nil).Empty() {
		t.Error("nil input should give an empty transcript")
	}
}

func TestTextOnly(t *testing.T) {
	in := []Message{
		{Content: "a", Type: "text"},
		{Content: "img", Type: "image"},
		{Content: "b"},
		{Content: "sys", Type: "system"},
	}
	got := TextOnly(in)
	if len(got) != 2 || got[0].Content != "a" || got[1].Content != "b" {
		t.Errorf("TextOnly = %+v", got)
	}
}

func TestMessageUnmarshal_Timestamp(t *testing.T) {
	want := time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)
	cases := map[string]string{
		"epoch millis": `{"sender":"Zhang","content":"hi","timestamp":1704074400000,"type":"text"}`,
		"rfc3339":      `{"sender":"Zhang","content":"hi","timestamp":"2024-01-01T10:00:00+08:00","type":"text"}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(in), &m); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !m.Timestamp.Equal(want) {
				t.Errorf("Timestamp = %v, want %v", m.Timestamp, want)
			}
			if m.Sender != "Zhang" || m.Content != "hi" || m.Type != TypeText {
				t.Errorf("message = %+v", m)
			}
		})
	}
}

func TestMessageUnmarshal_BadTimestamp(t *testing.T) {
	for _, in := range []string{
		`{"timestamp":true}`,
		`{"timestamp":1.5}`,
		`{"timestamp":"yesterday"}`,
	} {
		var m Message
		if err := json.Unmarshal([]byte(in), &m); err == nil {
			t.Errorf("%s: expected error", in)
		}
	}
}
