package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/wxtodo/internal/extract"
	"github.com/kalambet/wxtodo/internal/items"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Items     *items.Store
	Extractor ChatExtractor // optional; if nil, extract_action_items returns an error
	Now       func() time.Time
}

// NewMCPServer creates an MCP server with the action item tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := server.NewMCPServer(
		"wxtodo",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("wxtodo: action items extracted from WeChat group chats. List, add, complete and extract to-dos."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_action_items",
			mcp.WithDescription("List action items, pending first, then by priority and due date."),
			mcp.WithString("status", mcp.Description("pending (default), completed or all")),
			mcp.WithString("group", mcp.Description("Only items extracted from this chat")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 50)")),
		),
		mcpListItems(deps),
	)

	s.AddTool(
		mcp.NewTool("add_action_item",
			mcp.WithDescription("Add a manual action item."),
			mcp.WithString("title", mcp.Description("Short title, at most 200 characters"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Optional details")),
			mcp.WithString("priority", mcp.Description("high, medium (default) or low")),
			mcp.WithString("due_date", mcp.Description("Due date, e.g. 2024-01-05 or 2024-01-05 18:00")),
		),
		mcpAddItem(deps),
	)

	s.AddTool(
		mcp.NewTool("toggle_action_item",
			mcp.WithDescription("Flip an action item between pending and completed."),
			mcp.WithString("id", mcp.Description("Item id"), mcp.Required()),
		),
		mcpToggleItem(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_action_item",
			mcp.WithDescription("Delete an action item."),
			mcp.WithString("id", mcp.Description("Item id"), mcp.Required()),
		),
		mcpDeleteItem(deps),
	)

	s.AddTool(
		mcp.NewTool("action_item_stats",
			mcp.WithDescription("Counts of total, completed, pending and overdue items, and pending items by priority."),
		),
		mcpStats(deps),
	)

	s.AddTool(
		mcp.NewTool("extract_action_items",
			mcp.WithDescription("Extract new action items from chat messages. Messages already covered by an item are skipped."),
			mcp.WithString("chat_name", mcp.Description("Chat display name"), mcp.Required()),
			mcp.WithString("messages", mcp.Description("JSON array of {sender, content, timestamp, type} objects; timestamp is RFC 3339 or epoch milliseconds"), mcp.Required()),
		),
		mcpExtract(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"items://pending",
			"Pending Action Items",
			mcp.WithResourceDescription("Pending action items in display order"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePending(deps),
	)

	return s
}

// formatItem renders one item as a single line, e.g.
// "[ ] Buy laptops [high] due 2024-01-05 (Office) id=...".
func formatItem(it items.Item) string {
	var b strings.Builder
	if it.Completed {
		b.WriteString("[x] ")
	} else {
		b.WriteString("[ ] ")
	}
	fmt.Fprintf(&b, "%s [%s]", it.Title, it.Priority)
	if it.DueDate != nil {
		fmt.Fprintf(&b, " due %s", *it.DueDate)
	}
	if it.GroupName != nil {
		fmt.Fprintf(&b, " (%s)", *it.GroupName)
	}
	fmt.Fprintf(&b, " id=%s", it.ID)
	return b.String()
}

func mcpListItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := req.GetString("status", "pending")
		switch status {
		case "pending", "completed", "all":
		default:
			return mcpError("status must be one of pending, completed, all"), nil
		}
		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}

		list := filterItems(deps.Items.List(), status, req.GetString("group", ""))
		if len(list) == 0 {
			return mcpText("No action items."), nil
		}
		if len(list) > limit {
			list = list[:limit]
		}

		lines := make([]string, len(list))
		for i, it := range list {
			lines[i] = formatItem(it)
		}
		return mcpText(strings.Join(lines, "\n")), nil
	}
}

func mcpAddItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}

		priority := items.Priority(strings.ToLower(req.GetString("priority", "")))
		if priority != "" && !priority.Valid() {
			return mcpError(fmt.Sprintf("unknown priority %q", priority)), nil
		}

		in := items.NewItem{
			Title:       title,
			Description: req.GetString("description", ""),
			Priority:    priority,
			Source:      items.SourceManual,
		}
		if due := strings.TrimSpace(req.GetString("due_date", "")); due != "" {
			in.DueDate = &due
		}

		it, err := deps.Items.Create(in)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText("Created " + formatItem(it)), nil
	}
}

func mcpToggleItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		it, err := deps.Items.ToggleComplete(id)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(formatItem(it)), nil
	}
}

func mcpDeleteItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if err := deps.Items.Delete(id); err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Deleted %s", id)), nil
	}
}

func mcpStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Items.Statistics(deps.Now()))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpExtract(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Extractor == nil {
			return mcpError("extraction not available: no model configured"), nil
		}

		chat, err := req.RequireString("chat_name")
		if err != nil {
			return mcpError("chat_name is required"), nil
		}
		raw, err := req.RequireString("messages")
		if err != nil {
			return mcpError("messages is required"), nil
		}
		msgs, err := decodeMessages(json.RawMessage(raw))
		if err != nil {
			return mcpError(fmt.Sprintf("invalid messages JSON: %v", err)), nil
		}

		created, err := deps.Extractor.ExtractFromChat(ctx, msgs, chat)
		if err != nil {
			if errors.Is(err, extract.ErrUnavailable) {
				return mcpError(fmt.Sprintf("model unavailable, try again later: %v", err)), nil
			}
			return mcpError(err.Error()), nil
		}
		if len(created) == 0 {
			return mcpText("No new action items."), nil
		}

		lines := make([]string, len(created))
		for i, it := range created {
			lines[i] = formatItem(it)
		}
		return mcpText(fmt.Sprintf("Created %d action items:\n%s", len(created), strings.Join(lines, "\n"))), nil
	}
}

func mcpResourcePending(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(filterItems(deps.Items.List(), "pending", ""))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal items: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
