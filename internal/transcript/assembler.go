// Package transcript turns chat messages into the text block sent to the
// model, skipping messages that already produced an action item.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/wxtodo/internal/items"
)

// TimeLayout renders message times the way provenance fields store them
// (e.g. "2024/1/1 09:05:03").
const TimeLayout = "2006/1/2 15:04:05"

// TypeText is the only message type the pipeline consumes.
const TypeText = "text"

// Message is one chat message from the message source.
type Message struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type,omitempty"`
}

// UnmarshalJSON accepts timestamp as an RFC 3339 string or as epoch
// milliseconds.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var aux struct {
		plain
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Message(aux.plain)

	ts := bytes.TrimSpace(aux.Timestamp)
	switch {
	case len(ts) == 0 || bytes.Equal(ts, []byte("null")):
		m.Timestamp = time.Time{}
	case ts[0] == '"':
		if err := json.Unmarshal(ts, &m.Timestamp); err != nil {
			return err
		}
	default:
		var ms json.Number
		if err := json.Unmarshal(ts, &ms); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		n, err := ms.Int64()
		if err != nil {
			return fmt.Errorf("timestamp must be epoch milliseconds: %w", err)
		}
		m.Timestamp = time.UnixMilli(n)
	}
	return nil
}

// Line is a message that survived the pre-filter, with its formatted time.
type Line struct {
	Message
	Time string
}

// Transcript is the filtered, rendered input for one extraction call.
type Transcript struct {
	Lines []Line
	Text  string
}

// Empty reports whether nothing is left to extract from.
func (t Transcript) Empty() bool {
	return len(t.Lines) == 0
}

// Assembler filters and renders transcripts.
type Assembler struct {
	loc *time.Location
}

// NewAssembler returns an Assembler formatting times in loc (time.Local if nil).
func NewAssembler(loc *time.Location) *Assembler {
	if loc == nil {
		loc = time.Local
	}
	return &Assembler{loc: loc}
}

// FormatTime renders t in the provenance layout.
func (a *Assembler) FormatTime(t time.Time) string {
	return t.In(a.loc).Format(TimeLayout)
}

type provenanceKey struct {
	group, sender, at string
}

// Assemble drops messages whose (group, sender, time) already backs an
// existing item and renders the rest as "[time] [sender]: content" lines.
func (a *Assembler) Assemble(messages []Message, group string, existing []items.Item) Transcript {
	seen := make(map[provenanceKey]struct{})
	for _, it := range existing {
		if !it.InGroup(group) || it.Sender == nil || it.MessageTime == nil {
			continue
		}
		seen[provenanceKey{group, *it.Sender, *it.MessageTime}] = struct{}{}
	}

	var t Transcript
	var sb strings.Builder
	for _, m := range messages {
		at := a.FormatTime(m.Timestamp)
		if _, dup := seen[provenanceKey{group, m.Sender, at}]; dup {
			continue
		}
		if len(t.Lines) > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%s] [%s]: %s", at, m.Sender, m.Content)
		t.Lines = append(t.Lines, Line{Message: m, Time: at})
	}
	t.Text = sb.String()
	return t
}

// TextOnly keeps messages of type text. An empty type counts as text.
func TextOnly(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Type == "" || m.Type == TypeText {
			out = append(out, m)
		}
	}
	return out
}
