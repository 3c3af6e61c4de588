package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dayline/dayline/internal/dispatch"
	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store *storage.Store
}

// NewMCPServer creates an MCP server with all dayline tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"dayline",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("dayline: personal notes, tasks, and activity trackers, enriched in the background."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("add_note",
			mcp.WithDescription("Store a note. It is queued for background enrichment."),
			mcp.WithString("title", mcp.Description("Optional title; derived from the content when empty")),
			mcp.WithString("content", mcp.Description("The note text"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags for categorization")),
		),
		mcpAddNote(deps),
	)

	s.AddTool(
		mcp.NewTool("add_task",
			mcp.WithDescription("Create a task. It is queued for background enrichment."),
			mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
			mcp.WithString("details", mcp.Description("Optional free-form details")),
			mcp.WithString("due_at", mcp.Description("Optional due date, RFC 3339 or YYYY-MM-DD")),
		),
		mcpAddTask(deps),
	)

	s.AddTool(
		mcp.NewTool("list_notes",
			mcp.WithDescription("List recent notes with their processing status."),
			mcp.WithString("status", mcp.Description("Optional filter: NOT_PROCESSED, PENDING, PROCESSING, COMPLETED, FAILED, or SKIPPED")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpListNotes(deps),
	)

	s.AddTool(
		mcp.NewTool("get_note",
			mcp.WithDescription("Fetch a single note including its enrichment data."),
			mcp.WithString("id", mcp.Description("Note ID"), mcp.Required()),
		),
		mcpGetNote(deps),
	)

	s.AddTool(
		mcp.NewTool("enrich",
			mcp.WithDescription("Queue an entity for (re-)enrichment. Legal only from the NOT_PROCESSED, FAILED, or SKIPPED states."),
			mcp.WithString("kind", mcp.Description("Entity kind: note, task, or activity"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Entity ID"), mcp.Required()),
		),
		mcpEnrich(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"dayline://recent",
			"Recently Enriched Notes",
			mcp.WithResourceDescription("Last 10 notes that completed enrichment"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAddNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		title := req.GetString("title", "")
		tags := req.GetStringSlice("tags", nil)

		tagsJSON, err := marshalTags(tags)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal tags: %v", err)), nil
		}

		now := time.Now().UTC()
		note := storage.Note{
			ID:               uuid.New().String(),
			Title:            title,
			Content:          content,
			Tags:             tagsJSON,
			ProcessingStatus: status.Pending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := deps.Store.CreateNote(note); err != nil {
			return mcpError(fmt.Sprintf("failed to save note: %v", err)), nil
		}
		if err := deps.Store.EnqueueJob(dispatch.NewJob(storage.JobEnrichNote, note.ID)); err != nil {
			return mcpError(fmt.Sprintf("saved note but failed to queue enrichment: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored note %s; enrichment queued", note.ID)), nil
	}
}

func mcpAddTask(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}

		details := req.GetString("details", "")

		var dueAt *time.Time
		if raw := req.GetString("due_at", ""); raw != "" {
			due, err := parseDueDate(raw)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid due_at: %v", err)), nil
			}
			dueAt = &due
		}

		now := time.Now().UTC()
		task := storage.Task{
			ID:               uuid.New().String(),
			Title:            title,
			Details:          details,
			DueAt:            dueAt,
			ProcessingStatus: status.Pending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := deps.Store.CreateTask(task); err != nil {
			return mcpError(fmt.Sprintf("failed to save task: %v", err)), nil
		}
		if err := deps.Store.EnqueueJob(dispatch.NewJob(storage.JobEnrichTask, task.ID)); err != nil {
			return mcpError(fmt.Sprintf("saved task but failed to queue enrichment: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Created task %s; enrichment queued", task.ID)), nil
	}
}

func parseDueDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func mcpListNotes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		var notes []storage.Note
		var err error
		if raw := req.GetString("status", ""); raw != "" {
			st, perr := status.Parse(raw)
			if perr != nil {
				return mcpError(fmt.Sprintf("invalid status filter: %v", perr)), nil
			}
			notes, err = deps.Store.ListNotesByStatus(st, limit)
		} else {
			notes, err = deps.Store.ListNotes(limit)
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list notes: %v", err)), nil
		}

		if len(notes) == 0 {
			return mcpText("[]"), nil
		}

		summaries := make([]noteSummary, len(notes))
		for i, n := range notes {
			summaries[i] = summarizeNote(n)
		}
		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal notes: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		note, err := deps.Store.GetNote(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get note: %v", err)), nil
		}

		b, err := json.Marshal(note)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal note: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpEnrich(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := req.RequireString("kind")
		if err != nil {
			return mcpError("kind is required"), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		var jobType string
		var current status.Status
		var requeue func() error

		switch kind {
		case "note":
			note, err := deps.Store.GetNote(id)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to get note: %v", err)), nil
			}
			jobType, current = storage.JobEnrichNote, note.ProcessingStatus
			requeue = func() error {
				note.ProcessingStatus = status.Pending
				return deps.Store.SaveNote(note)
			}
		case "task":
			task, err := deps.Store.GetTask(id)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to get task: %v", err)), nil
			}
			jobType, current = storage.JobEnrichTask, task.ProcessingStatus
			requeue = func() error {
				task.ProcessingStatus = status.Pending
				return deps.Store.SaveTask(task)
			}
		case "activity":
			activity, err := deps.Store.GetActivity(id)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to get activity: %v", err)), nil
			}
			jobType, current = storage.JobEnrichActivity, activity.ProcessingStatus
			requeue = func() error {
				activity.ProcessingStatus = status.Pending
				return deps.Store.SaveActivity(activity)
			}
		default:
			return mcpError(fmt.Sprintf("unknown kind %q: want note, task, or activity", kind)), nil
		}

		if err := status.Check(current, status.Pending); err != nil {
			return mcpError(err.Error()), nil
		}
		if err := requeue(); err != nil {
			return mcpError(fmt.Sprintf("failed to update %s: %v", kind, err)), nil
		}
		if err := deps.Store.EnqueueJob(dispatch.NewJob(jobType, id)); err != nil {
			return mcpError(fmt.Sprintf("failed to queue enrichment: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Queued %s %s for enrichment", kind, id)), nil
	}
}

type noteSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

func summarizeNote(n storage.Note) noteSummary {
	title := n.Title
	if utf8.RuneCountInString(title) > 200 {
		runes := []rune(title)
		title = string(runes[:200]) + "..."
	}
	s := noteSummary{
		ID:        n.ID,
		Title:     title,
		Status:    string(n.ProcessingStatus),
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
	if n.ProcessedAt != nil {
		s.ProcessedAt = n.ProcessedAt.Format(time.RFC3339)
	}
	return s
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		notes, err := deps.Store.RecentCompletedNotes(10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent notes: %w", err)
		}

		summaries := make([]noteSummary, len(notes))
		for i, n := range notes {
			summaries[i] = summarizeNote(n)
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notes: %w", err)
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
