package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dayline/dayline/internal/config"
)

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import content as a note and queue its enrichment",
	Long: `Import content as a note and queue its enrichment.

Examples:
  dayline import --text "Call the dentist about Tuesday slots"
  dayline import --url https://example.com/article --tags reading
  dayline import --file ./plan.pdf --title "Quarter plan" --tags work`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		srcURL, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")
		tagsStr, _ := cmd.Flags().GetString("tags")

		if text == "" && srcURL == "" && file == "" {
			return fmt.Errorf("one of --text, --url, or --file is required")
		}

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		req := map[string]any{}
		if tags != nil {
			req["tags"] = tags
		}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["type"] = "text"
			req["content"] = text
		case srcURL != "":
			req["type"] = "url"
			req["url"] = srcURL
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			req["type"] = "file"
			req["content"] = base64.StdEncoding.EncodeToString(data)
			req["filename"] = filepath.Base(file)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/import", req)
		if err != nil {
			return err
		}

		var note struct {
			ID               string `json:"id"`
			Title            string `json:"title"`
			ProcessingStatus string `json:"processing_status"`
		}
		if err := decodeJSON(resp, &note); err != nil {
			return err
		}

		printSuccess("Imported note %s; enrichment queued", note.ID)
		return nil
	},
}

func init() {
	importCmd.Flags().String("text", "", "text content to import")
	importCmd.Flags().String("url", "", "URL to fetch and import")
	importCmd.Flags().String("file", "", "file path to import (text, markdown, HTML, or PDF)")
	importCmd.Flags().String("title", "", "title for the note")
	importCmd.Flags().String("tags", "", "comma-separated tags")
}

// --- notes ---

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "List and inspect notes",
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent notes",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		statusFilter, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/notes?limit=%d", limit)
		if statusFilter != "" {
			path += "&status=" + url.QueryEscape(strings.ToUpper(statusFilter))
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var notes []struct {
			ID               string `json:"id"`
			Title            string `json:"title"`
			ProcessingStatus string `json:"processing_status"`
			CreatedAt        string `json:"created_at"`
		}
		if err := decodeJSON(resp, &notes); err != nil {
			return err
		}

		if len(notes) == 0 {
			fmt.Println("No notes found.")
			return nil
		}

		for _, n := range notes {
			title := n.Title
			if len(title) > 60 {
				title = title[:60] + "..."
			}
			fmt.Printf("%s  %-10s  %s\n",
				colorize(colorCyan, n.ID[:8]),
				n.ProcessingStatus,
				title,
			)
		}
		return nil
	},
}

var notesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single note as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/notes/"+args[0])
		if err != nil {
			return err
		}

		var note any
		if err := decodeJSON(resp, &note); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(note)
	},
}

var notesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/notes/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted note %s", args[0])
		return nil
	},
}

func init() {
	notesListCmd.Flags().Int("limit", 20, "maximum number of notes to list")
	notesListCmd.Flags().String("status", "", "filter by processing status (e.g. PENDING, FAILED)")
	notesCmd.AddCommand(notesListCmd)
	notesCmd.AddCommand(notesShowCmd)
	notesCmd.AddCommand(notesDeleteCmd)
}

// --- enrich ---

var enrichCmd = &cobra.Command{
	Use:   "enrich <kind> <id>",
	Short: "Queue an entity for (re-)enrichment",
	Long: `Queue an entity for (re-)enrichment.

Kind is one of: note, task, activity. Only entities whose processing
status admits another run (for example FAILED or SKIPPED) are accepted.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id := args[0], args[1]

		var base string
		switch kind {
		case "note":
			base = "/notes"
		case "task":
			base = "/tasks"
		case "activity":
			base = "/activities"
		default:
			return fmt.Errorf("unknown kind %q: want note, task, or activity", kind)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), base+"/"+id+"/enrich", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued %s %s for enrichment", kind, result["id"])
		return nil
	},
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
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value.\n\nValid keys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
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
