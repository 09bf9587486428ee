package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mvp-joe/snipdex/internal/reconcile"
	"github.com/mvp-joe/snipdex/internal/snippet"
	"github.com/mvp-joe/snipdex/internal/snippets"
)

// SnippetLister runs paginated snippet listings.
type SnippetLister interface {
	List(ctx context.Context, term string, filter snippet.FilterProperties, sort *snippet.SortProperties, page int) (*snippets.Page, error)
}

// SyncRunner starts reconciliation runs and reports their progress.
type SyncRunner interface {
	Start() (string, error)
	Get(id string) (reconcile.Snapshot, error)
}

// AddSnippetSearchTool registers the snippet_search tool with an MCP server.
func AddSnippetSearchTool(s *server.MCPServer, lister SnippetLister) {
	tool := mcp.NewTool(
		"snippet_search",
		mcp.WithDescription("Search stored code snippets by text, language, and tags. Returns one page of matching snippets with their code."),
		mcp.WithString("search",
			mcp.Description("Free-text query matched against title, description, and code. Leave empty to browse.")),
		mcp.WithString("language",
			mcp.Description("Only snippets in this language (e.g., 'Go', 'Python')")),
		mcp.WithArray("tags",
			mcp.Description("Only snippets carrying ALL of these tags (AND logic)")),
		mcp.WithString("sort",
			mcp.Description("Sort field: title, created, modified, relevance (default: relevance when searching, created otherwise)")),
		mcp.WithString("order",
			mcp.Description("Sort order: asc or desc")),
		mcp.WithNumber("page",
			mcp.Description("1-based page number (default: 1)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, createSnippetSearchHandler(lister))
}

func createSnippetSearchHandler(lister SnippetLister) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}

		term, err := parseStringArg(argsMap, "search", false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		language, err := parseStringArg(argsMap, "language", false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		field, err := parseStringArg(argsMap, "sort", false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		order, err := parseStringArg(argsMap, "order", false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		sort, err := snippet.ParseSortProperties(term, field, order)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		filter := snippet.FilterProperties{
			Language: language,
			Tags:     parseTagsArg(argsMap, "tags"),
		}

		pageNum, err := parseIntArg(argsMap, "page", 1)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		page, err := lister.List(ctx, term, filter, sort, pageNum)
		if err != nil {
			if errors.Is(err, snippet.ErrPageNotExists) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return nil, fmt.Errorf("snippet search failed: %w", err)
		}

		return jsonResult(page)
	}
}

// AddSyncTools registers snippet_sync_start and snippet_sync_status.
func AddSyncTools(s *server.MCPServer, runner SyncRunner) {
	start := mcp.NewTool(
		"snippet_sync_start",
		mcp.WithDescription("Start reconciling the search index with the snippet files on disk. Returns the run id; if a run is already active its id is returned."),
	)
	s.AddTool(start, createSyncStartHandler(runner))

	status := mcp.NewTool(
		"snippet_sync_status",
		mcp.WithDescription("Report the status and progress of a synchronization run."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Run id returned by snippet_sync_start")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(status, createSyncStatusHandler(runner))
}

func createSyncStartHandler(runner SyncRunner) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := runner.Start()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]string{"id": id})
	}
}

func createSyncStatusHandler(runner SyncRunner) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}

		id, err := parseStringArg(argsMap, "id", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		snap, err := runner.Get(id)
		if err != nil {
			if errors.Is(err, snippet.ErrNotExists) {
				return mcp.NewToolResultError(fmt.Sprintf("synchronization %s not found", id)), nil
			}
			return nil, fmt.Errorf("failed to get synchronization: %w", err)
		}
		return jsonResult(snap)
	}
}

// jsonResult returns v as JSON text (mcp-go convention).
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
