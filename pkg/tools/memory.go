// Package tools exposes the memory store over the Model Context
// Protocol so assistants can call it from a stdio session.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/theapemachine/recall/pkg/category"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/unified"
)

// MemoryTools binds the tool handlers to a unified store.
type MemoryTools struct {
	store *unified.Store
	srv   *server.MCPServer
}

// RegisterMemoryTools attaches every memory tool to the supplied MCP
// server. The memory_store tool advertises the known category names in
// its schema, so it is re-registered whenever the registry changes.
func RegisterMemoryTools(srv *server.MCPServer, store *unified.Store) *MemoryTools {
	mt := &MemoryTools{store: store, srv: srv}

	srv.AddTool(mt.buildStoreTool(), mt.handleStore)
	srv.AddTool(buildSearchTool(), mt.handleSearch)
	srv.AddTool(buildGetTool(), mt.handleGet)
	srv.AddTool(buildUpdateTool(), mt.handleUpdate)
	srv.AddTool(buildTrashTool(), mt.handleTrash)
	srv.AddTool(buildRestoreTool(), mt.handleRestore)
	srv.AddTool(buildGraphTool(), mt.handleGraph)
	srv.AddTool(buildStaleTool(), mt.handleStale)

	srv.AddTool(buildCategoryListTool(), mt.handleCategoryList)
	srv.AddTool(buildCategoryCreateTool(), mt.handleCategoryCreate)
	srv.AddTool(buildCategoryRenameTool(), mt.handleCategoryRename)
	srv.AddTool(buildCategoryDeleteTool(), mt.handleCategoryDelete)

	store.Registry().Subscribe(func(category.Event) {
		// Re-registering under the same name replaces the schema and
		// triggers a tools/list_changed notification.
		srv.AddTool(mt.buildStoreTool(), mt.handleStore)
	})

	return mt
}

func (mt *MemoryTools) buildStoreTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Stores a long-term memory with semantic indexing. Returns the stored memory as JSON."),
		mcp.WithString("content",
			mcp.Description("The fact or note to remember"),
			mcp.Required(),
		),
		mcp.WithString("subcategory",
			mcp.Description("Free-form refinement of the category"),
		),
		mcp.WithString("project",
			mcp.Description("Project this memory belongs to"),
		),
		mcp.WithArray("tags",
			mcp.Description("Lowercase labels for filtering"),
		),
		mcp.WithNumber("importance",
			mcp.Description("1 (trivial) to 10 (critical); 8 and above never decays"),
		),
		mcp.WithArray("related_files",
			mcp.Description("Workspace-relative file paths this memory describes"),
		),
		mcp.WithArray("related_memory_ids",
			mcp.Description("IDs of memories to link explicitly"),
		),
	}

	categoryOpts := []mcp.PropertyOption{
		mcp.Description("Category to file the memory under (created as a stub when unknown)"),
	}

	if names := mt.categoryNames(); len(names) > 0 {
		categoryOpts = append(categoryOpts, mcp.Enum(names...))
	}

	opts = append(opts, mcp.WithString("category", categoryOpts...))

	return mcp.NewTool("memory_store", opts...)
}

func (mt *MemoryTools) categoryNames() []string {
	categories := mt.store.Registry().List()
	names := make([]string, 0, len(categories))

	for _, cat := range categories {
		names = append(names, cat.Name)
	}

	return names
}

func buildSearchTool() mcp.Tool {
	return mcp.NewTool(
		"memory_search",
		mcp.WithDescription("Searches memories by meaning. Results are ranked by similarity, recency, and usage."),
		mcp.WithString("query",
			mcp.Description("Natural language query"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default 10)"),
		),
		mcp.WithString("category",
			mcp.Description("Restrict to one category"),
		),
		mcp.WithString("project",
			mcp.Description("Restrict to one project"),
		),
		mcp.WithArray("tags",
			mcp.Description("Match memories carrying any of these tags"),
		),
		mcp.WithNumber("min_importance",
			mcp.Description("Drop results below this importance"),
		),
		mcp.WithString("current_project",
			mcp.Description("Boosts matches from this project without excluding others"),
		),
	)
}

func buildGetTool() mcp.Tool {
	return mcp.NewTool(
		"memory_get",
		mcp.WithDescription("Retrieves a memory by ID, trashed or not."),
		mcp.WithString("id",
			mcp.Description("Memory ID"),
			mcp.Required(),
		),
	)
}

func buildUpdateTool() mcp.Tool {
	return mcp.NewTool(
		"memory_update",
		mcp.WithDescription("Updates fields of an existing memory. Changing the content re-embeds it."),
		mcp.WithString("id",
			mcp.Description("Memory ID"),
			mcp.Required(),
		),
		mcp.WithString("content", mcp.Description("Replacement content")),
		mcp.WithString("category", mcp.Description("New category")),
		mcp.WithString("subcategory", mcp.Description("New subcategory")),
		mcp.WithString("project", mcp.Description("New project")),
		mcp.WithArray("tags", mcp.Description("Replacement tag list")),
		mcp.WithNumber("importance", mcp.Description("New importance, 1 to 10")),
		mcp.WithArray("related_files", mcp.Description("Replacement related file list")),
		mcp.WithArray("related_memory_ids", mcp.Description("Replacement manual link list")),
	)
}

func buildTrashTool() mcp.Tool {
	return mcp.NewTool(
		"memory_trash",
		mcp.WithDescription("Moves a memory to the trash. Trashed memories never appear in search results."),
		mcp.WithString("id",
			mcp.Description("Memory ID"),
			mcp.Required(),
		),
	)
}

func buildRestoreTool() mcp.Tool {
	return mcp.NewTool(
		"memory_restore",
		mcp.WithDescription("Returns a trashed memory to the active set."),
		mcp.WithString("id",
			mcp.Description("Memory ID"),
			mcp.Required(),
		),
	)
}

func buildGraphTool() mcp.Tool {
	return mcp.NewTool(
		"memory_graph",
		mcp.WithDescription("Builds the relationship graph over all active memories: similarity, shared files, shared tags, category family, and manual links."),
	)
}

func buildStaleTool() mcp.Tool {
	return mcp.NewTool(
		"memory_stale",
		mcp.WithDescription("Reports memories whose related files changed on disk since the memory was saved."),
	)
}

func buildCategoryListTool() mcp.Tool {
	return mcp.NewTool(
		"category_list",
		mcp.WithDescription("Lists all known categories with their hierarchy."),
	)
}

func buildCategoryCreateTool() mcp.Tool {
	return mcp.NewTool(
		"category_create",
		mcp.WithDescription("Creates a category, optionally under a parent."),
		mcp.WithString("name",
			mcp.Description("Lowercase name, letters, digits and dashes"),
			mcp.Required(),
		),
		mcp.WithString("description",
			mcp.Description("What belongs in this category"),
		),
		mcp.WithString("parent",
			mcp.Description("Existing parent category"),
		),
	)
}

func buildCategoryRenameTool() mcp.Tool {
	return mcp.NewTool(
		"category_rename",
		mcp.WithDescription("Renames a category and cascades the change to its memories and children."),
		mcp.WithString("name",
			mcp.Description("Current name"),
			mcp.Required(),
		),
		mcp.WithString("new_name",
			mcp.Description("New name"),
			mcp.Required(),
		),
	)
}

func buildCategoryDeleteTool() mcp.Tool {
	return mcp.NewTool(
		"category_delete",
		mcp.WithDescription("Deletes a category. Fails while memories or children still reference it unless a reassignment target is given."),
		mcp.WithString("name",
			mcp.Description("Category to delete"),
			mcp.Required(),
		),
		mcp.WithString("reassign_memories_to",
			mcp.Description("Move the category's memories here before deleting"),
		),
		mcp.WithString("reassign_children_to",
			mcp.Description("Move child categories here before deleting"),
		),
		mcp.WithBoolean("remove_memories",
			mcp.Description("Trash the category's memories instead of reassigning them"),
		),
	)
}

func (mt *MemoryTools) handleStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	m, err := mt.store.StoreMemory(ctx, unified.StoreInput{
		Content:          argString(args, "content"),
		Category:         argString(args, "category"),
		Subcategory:      argString(args, "subcategory"),
		Project:          argString(args, "project"),
		Tags:             argStrings(args, "tags"),
		Importance:       argInt(args, "importance"),
		RelatedFiles:     argStrings(args, "related_files"),
		RelatedMemoryIDs: argStrings(args, "related_memory_ids"),
	})

	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(m)
}

func (mt *MemoryTools) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	results, err := mt.store.Search(ctx, argString(args, "query"), memory.Filters{
		Category:      argString(args, "category"),
		Project:       argString(args, "project"),
		Tags:          argStrings(args, "tags"),
		MinImportance: argInt(args, "min_importance"),
	}, argInt(args, "limit"), argString(args, "current_project"))

	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(results)
}

func (mt *MemoryTools) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := argString(req.GetArguments(), "id")

	if id == "" {
		return nil, fmt.Errorf("id parameter is required")
	}

	m, err := mt.store.GetMemory(ctx, id)

	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(m)
}

func (mt *MemoryTools) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id := argString(args, "id")

	if id == "" {
		return nil, fmt.Errorf("id parameter is required")
	}

	var input unified.UpdateInput

	if content, ok := args["content"].(string); ok {
		input.Content = &content
	}

	if cat, ok := args["category"].(string); ok {
		input.Category = &cat
	}

	if sub, ok := args["subcategory"].(string); ok {
		input.Subcategory = &sub
	}

	if project, ok := args["project"].(string); ok {
		input.Project = &project
	}

	if _, ok := args["tags"]; ok {
		tags := argStrings(args, "tags")
		input.Tags = &tags
	}

	if _, ok := args["importance"]; ok {
		importance := argInt(args, "importance")
		input.Importance = &importance
	}

	if _, ok := args["related_files"]; ok {
		files := argStrings(args, "related_files")
		input.RelatedFiles = &files
	}

	if _, ok := args["related_memory_ids"]; ok {
		ids := argStrings(args, "related_memory_ids")
		input.RelatedMemoryIDs = &ids
	}

	m, err := mt.store.UpdateMemory(ctx, id, input)

	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(m)
}

func (mt *MemoryTools) handleTrash(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := argString(req.GetArguments(), "id")

	if id == "" {
		return nil, fmt.Errorf("id parameter is required")
	}

	if err := mt.store.TrashMemory(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("trashed " + id), nil
}

func (mt *MemoryTools) handleRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := argString(req.GetArguments(), "id")

	if id == "" {
		return nil, fmt.Errorf("id parameter is required")
	}

	if err := mt.store.RestoreMemory(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("restored " + id), nil
}

func (mt *MemoryTools) handleGraph(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := mt.store.BuildGraph(ctx)

	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(g)
}

func (mt *MemoryTools) handleStale(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := mt.store.CheckStale(ctx)

	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(report)
}

func (mt *MemoryTools) handleCategoryList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(mt.store.Registry().List())
}

func (mt *MemoryTools) handleCategoryCreate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	cat := category.Category{
		Name:        argString(args, "name"),
		Description: argString(args, "description"),
		Parent:      argString(args, "parent"),
	}

	if err := mt.store.Registry().Create(cat); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("created " + cat.Name), nil
}

func (mt *MemoryTools) handleCategoryRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	result, err := mt.store.Registry().Rename(
		ctx, argString(args, "name"), argString(args, "new_name"),
	)

	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]any{
		"memories_updated": result.MemoriesUpdated,
		"children_updated": result.ChildrenUpdated,
	}

	if result.Warning != nil {
		body["warning"] = result.Warning.Error()
	}

	return jsonResult(body)
}

func (mt *MemoryTools) handleCategoryDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	name := argString(args, "name")

	err := mt.store.Registry().Delete(ctx, name, category.DeleteOptions{
		ReassignMemoriesTo: argString(args, "reassign_memories_to"),
		ReassignChildrenTo: argString(args, "reassign_children_to"),
		RemoveMemories:     argBool(args, "remove_memories"),
	})

	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("deleted " + name), nil
}

func jsonResult(value any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(value)

	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return mcp.NewToolResultText(string(raw)), nil
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argBool(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// argInt tolerates the float64 that JSON decoding produces.
func argInt(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func argStrings(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))

		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}
