package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/wxtodo/internal/config"
	"github.com/kalambet/wxtodo/internal/items"
	"github.com/kalambet/wxtodo/internal/pipeline"
	"github.com/kalambet/wxtodo/internal/storage"
	"github.com/kalambet/wxtodo/internal/transcript"
)

// --- items ---

var itemsCmd = &cobra.Command{
	Use:     "items",
	Aliases: []string{"item", "todo"},
	Short:   "List and manage action items",
}

func listItems(ctx context.Context, c *apiClient, status, group string) ([]items.Item, error) {
	q := url.Values{}
	q.Set("status", status)
	if group != "" {
		q.Set("group", group)
	}
	resp, err := c.get(ctx, "/items?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var list []items.Item
	if err := decodeJSON(resp, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// resolveID expands an id prefix, as printed by "items list", to a full id.
func resolveID(ctx context.Context, c *apiClient, prefix string) (string, error) {
	if len(prefix) >= 36 {
		return prefix, nil
	}
	list, err := listItems(ctx, c, "all", "")
	if err != nil {
		return "", err
	}
	var matches []string
	for _, it := range list {
		if strings.HasPrefix(it.ID, prefix) {
			matches = append(matches, it.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no item with id %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous (%d items)", prefix, len(matches))
	}
}

var itemsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List action items, pending first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		group, _ := cmd.Flags().GetString("group")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		list, err := listItems(cmd.Context(), client, status, group)
		if err != nil {
			return err
		}

		if asJSON {
			return prettyJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No action items.")
			return nil
		}
		for _, it := range list {
			fmt.Println(formatItemLine(it))
		}
		return nil
	},
}

var itemsAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a manual action item",
	Example: `  wxtodo items add "Send the quarterly report" --priority high --due 2024-01-05
  wxtodo items add "Book a meeting room" --desc "for Friday's review"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("desc")
		priority, _ := cmd.Flags().GetString("priority")
		due, _ := cmd.Flags().GetString("due")

		in := items.NewItem{
			Title:       strings.Join(args, " "),
			Description: desc,
			Priority:    items.Priority(strings.ToLower(priority)),
		}
		if in.Priority != "" && !in.Priority.Valid() {
			return fmt.Errorf("--priority must be high, medium or low")
		}
		if due != "" {
			in.DueDate = &due
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/items", in)
		if err != nil {
			return err
		}
		var it items.Item
		if err := decodeJSON(resp, &it); err != nil {
			return err
		}
		printSuccess("Added %s", formatItemLine(it))
		return nil
	},
}

var itemsEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change an action item's title, description, priority or due date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p items.Patch
		flags := cmd.Flags()
		if flags.Changed("title") {
			v, _ := flags.GetString("title")
			p.Title = &v
		}
		if flags.Changed("desc") {
			v, _ := flags.GetString("desc")
			p.Description = &v
		}
		if flags.Changed("priority") {
			v, _ := flags.GetString("priority")
			pr := items.Priority(strings.ToLower(v))
			p.Priority = &pr
		}
		if flags.Changed("due") {
			v, _ := flags.GetString("due")
			p.DueDate = &v
		}
		if p == (items.Patch{}) {
			return fmt.Errorf("nothing to change; pass --title, --desc, --priority or --due")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := resolveID(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/items/"+id, p)
		if err != nil {
			return err
		}
		var it items.Item
		if err := decodeJSON(resp, &it); err != nil {
			return err
		}
		printSuccess("Updated %s", formatItemLine(it))
		return nil
	},
}

var itemsDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Toggle an action item between pending and completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := resolveID(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/items/"+id+"/toggle", nil)
		if err != nil {
			return err
		}
		var it items.Item
		if err := decodeJSON(resp, &it); err != nil {
			return err
		}
		if it.Completed {
			printSuccess("Completed %q", it.Title)
		} else {
			printSuccess("Reopened %q", it.Title)
		}
		return nil
	},
}

var itemsRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete an action item",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := resolveID(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/items/"+id)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted %s", id)
		return nil
	},
}

var itemsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show item counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/items/stats")
		if err != nil {
			return err
		}
		var st items.Stats
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printStats(st)
		return nil
	},
}

func printStats(st items.Stats) {
	printStatus("Total", "%d", st.Total)
	printStatus("Pending", "%d", st.Pending)
	printStatus("Completed", "%d", st.Completed)
	overdue := fmt.Sprintf("%d", st.Overdue)
	if st.Overdue > 0 {
		overdue = colorize(colorRed, overdue)
	}
	printStatus("Overdue", "%s", overdue)
	printStatus("Pending by priority", "high %d, medium %d, low %d",
		st.ByPriority[items.PriorityHigh], st.ByPriority[items.PriorityMedium], st.ByPriority[items.PriorityLow])
}

func init() {
	itemsListCmd.Flags().String("status", "pending", "pending, completed or all")
	itemsListCmd.Flags().String("group", "", "only items extracted from this chat")
	itemsListCmd.Flags().Bool("json", false, "print JSON")

	itemsAddCmd.Flags().String("desc", "", "description")
	itemsAddCmd.Flags().String("priority", "", "high, medium or low (default medium)")
	itemsAddCmd.Flags().String("due", "", "due date, e.g. 2024-01-05 or \"2024-01-05 18:00\"")

	itemsEditCmd.Flags().String("title", "", "new title")
	itemsEditCmd.Flags().String("desc", "", "new description")
	itemsEditCmd.Flags().String("priority", "", "high, medium or low")
	itemsEditCmd.Flags().String("due", "", "new due date; empty clears it")

	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsAddCmd)
	itemsCmd.AddCommand(itemsEditCmd)
	itemsCmd.AddCommand(itemsDoneCmd)
	itemsCmd.AddCommand(itemsRmCmd)
	itemsCmd.AddCommand(itemsStatsCmd)
}

// --- extract ---

// readMessages loads a JSON array of messages from path, or stdin for "-".
func readMessages(path string) ([]transcript.Message, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("reading messages: %w", err)
		}
		defer f.Close()
		r = f
	}
	var msgs []transcript.Message
	if err := json.NewDecoder(r).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("parsing messages: %w", err)
	}
	return msgs, nil
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract action items from a JSON message export",
	Long: `Extract action items from a JSON array of chat messages.

Each message is {"sender", "content", "timestamp", "type"}; timestamp is
RFC 3339 or epoch milliseconds and type defaults to "text".

Examples:
  wxtodo extract --chat "Project Team" --file messages.json
  cat messages.json | wxtodo extract --chat "Project Team" --file -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		chat, _ := cmd.Flags().GetString("chat")
		file, _ := cmd.Flags().GetString("file")
		if strings.TrimSpace(chat) == "" || file == "" {
			return fmt.Errorf("--chat and --file are required")
		}

		msgs, err := readMessages(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Extracting from %d messages in %s...", len(msgs), chat)
		resp, err := client.post(cmd.Context(), "/extract", map[string]any{
			"chat_name": chat,
			"messages":  msgs,
		})
		if err != nil {
			return err
		}
		var result struct {
			Created []items.Item `json:"created"`
			Count   int          `json:"count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Count == 0 {
			fmt.Println("No new action items.")
			return nil
		}
		for _, it := range result.Created {
			fmt.Println(formatItemLine(it))
		}
		printSuccess("Created %d action items", result.Count)
		return nil
	},
}

func init() {
	extractCmd.Flags().String("chat", "", "chat display name")
	extractCmd.Flags().String("file", "", "JSON message file, or - for stdin")
}

// --- batch ---

// splitChatIDs merges comma-separated --chats values and positional args.
func splitChatIDs(flag string, args []string) []string {
	var ids []string
	for _, part := range append(strings.Split(flag, ","), args...) {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

var batchCmd = &cobra.Command{
	Use:   "batch [chat-id...]",
	Short: "Extract action items from several WeChat chats",
	Long: `Extract action items from several WeChat chats, one after another.

Chat ids are WeChat usernames (e.g. 12345678@chatroom); see "wxtodo chats".

Examples:
  wxtodo batch --chats 123@chatroom,456@chatroom --lookback 12
  wxtodo batch 123@chatroom --cooldown 0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		chats, _ := cmd.Flags().GetString("chats")
		lookback, _ := cmd.Flags().GetInt("lookback")

		ids := splitChatIDs(chats, args)
		if len(ids) == 0 {
			return fmt.Errorf("at least one chat id is required (--chats or arguments)")
		}
		body := map[string]any{
			"chat_ids":       ids,
			"lookback_hours": lookback,
		}
		if cmd.Flags().Changed("cooldown") {
			cooldown, _ := cmd.Flags().GetInt("cooldown")
			body["cooldown_seconds"] = cooldown
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		client.httpClient.Timeout = 0

		printStep("Processing %d chats...", len(ids))
		started := time.Now()
		resp, err := client.post(cmd.Context(), "/batch", body)
		if err != nil {
			return err
		}
		var res pipeline.BatchResult
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}

		for _, it := range res.Created {
			fmt.Println(formatItemLine(it))
		}
		for id, msg := range res.Errors {
			printError("%s: %s", id, msg)
		}
		printSuccess("Created %d action items from %d chats in %s",
			res.TotalCreated, len(ids)-len(res.Errors), time.Since(started).Round(time.Second))
		if len(res.Errors) > 0 {
			return fmt.Errorf("%d of %d chats failed", len(res.Errors), len(ids))
		}
		return nil
	},
}

var batchHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent batch runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/batch/runs?limit=%d", limit))
		if err != nil {
			return err
		}
		var runs []storage.BatchRun
		if err := decodeJSON(resp, &runs); err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No batch runs.")
			return nil
		}
		for _, r := range runs {
			fmt.Println(formatRunLine(r))
		}
		return nil
	},
}

func formatRunLine(r storage.BatchRun) string {
	status := string(r.Status)
	switch r.Status {
	case storage.BatchCompleted:
		status = colorize(colorGreen, status)
	case storage.BatchPartial, storage.BatchCancelled:
		status = colorize(colorYellow, status)
	}
	return fmt.Sprintf("%s  %s  %-9s  %d chats, %d created, %d failed",
		colorize(colorCyan, r.ID[:min(8, len(r.ID))]),
		r.StartedAt.Local().Format("2006-01-02 15:04"),
		status, len(r.ChatIDs), r.CreatedCount, len(r.Errors))
}

func init() {
	batchCmd.Flags().String("chats", "", "comma-separated chat ids")
	batchCmd.Flags().Int("lookback", 0, "hours of history to read (default from config)")
	batchCmd.Flags().Int("cooldown", 0, "seconds to wait between chats (default from config)")

	batchHistoryCmd.Flags().Int("limit", 10, "maximum number of runs to show")
	batchCmd.AddCommand(batchHistoryCmd)
}

// --- chats ---

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List WeChat chats available for batch extraction",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/chats?kind=groups"
		if all {
			path = "/chats"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var chats []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			IsGroup bool   `json:"is_group"`
		}
		if err := decodeJSON(resp, &chats); err != nil {
			return err
		}

		if len(chats) == 0 {
			fmt.Println("No chats found.")
			return nil
		}
		for _, c := range chats {
			fmt.Printf("%s  %s\n", colorize(colorCyan, c.ID), c.Name)
		}
		return nil
	},
}

func init() {
	chatsCmd.Flags().Bool("all", false, "include one-to-one contacts")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorGray, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			if errors.Is(err, config.ErrUnknownKey) {
				return errors.Join(err, fmt.Errorf("valid keys: %s", strings.Join(config.ValidKeys(), ", ")))
			}
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
