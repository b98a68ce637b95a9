package extract

import (
	"fmt"
	"strings"
)

const promptHeader = `You extract action items from a group chat transcript. An action item is something a person in the chat must do, attend, buy, answer or decide.

Look for these kinds of messages:`

const promptRules = `
Each transcript line has the form:
[YYYY/M/D HH:MM:SS] [sender]: message text

Rules:
- Only extract items that are actionable. Ignore greetings, jokes and small talk.
- One item per distinct action. Do not repeat the same action twice.
- Write the title as a short imperative phrase, in the language of the chat.
- Copy "sender" and "messageTime" exactly from the line the item came from.
- Use "dueDate" only when the chat names a date or time; otherwise null.

Output ONLY a JSON array. Each element must have exactly these fields:
{
  "title": string,
  "description": string,
  "priority": "high" | "medium" | "low",
  "dueDate": string or null,
  "sender": string,
  "messageTime": string
}
If nothing qualifies, output [] and nothing else.`

// BuildPrompt renders the extraction instructions followed by the transcript.
func BuildPrompt(categories []Category, transcript string) string {
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	var sb strings.Builder
	sb.WriteString(promptHeader)
	sb.WriteByte('\n')
	for _, c := range categories {
		fmt.Fprintf(&sb, "- %s", c.Name)
		if c.Description != "" {
			fmt.Fprintf(&sb, ": %s", c.Description)
		}
		if len(c.Examples) > 0 {
			fmt.Fprintf(&sb, ` (e.g. "%s")`, strings.Join(c.Examples, `", "`))
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(promptRules)
	sb.WriteString("\n\n[Transcript]\n")
	sb.WriteString(transcript)
	return sb.String()
}
