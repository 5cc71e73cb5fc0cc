package tools

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

func (t *Toolset) handleWriteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := requireProjectID(req)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	raw, err := req.RequireString("path")
	if err != nil {
		return errorResult("Invalid input parameters", sandbox.Invalid("path is required")), nil
	}
	p, err := workspacePath(raw)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return errorResult("Invalid input parameters", sandbox.Invalid("content is required")), nil
	}
	if len(content) > maxFileSize {
		return errorResult("Invalid input parameters",
			sandbox.Invalid("content is %d bytes, the limit is %d", len(content), maxFileSize)), nil
	}
	id, err := t.resolve(ctx, projectID)
	if err != nil {
		return errorResult("Failed to write file", err), nil
	}

	if err := t.mgr.WriteFile(ctx, id, p, []byte(content)); err != nil {
		return errorResult("Failed to write file", err), nil
	}
	return successResult(map[string]any{
		"project_id":   projectID,
		"container_id": id,
		"path":         p,
		"bytes":        len(content),
		"message":      "File written successfully",
	}), nil
}

func (t *Toolset) handleReadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := requireProjectID(req)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	raw, err := req.RequireString("path")
	if err != nil {
		return errorResult("Invalid input parameters", sandbox.Invalid("path is required")), nil
	}
	p, err := workspacePath(raw)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	id, err := t.resolve(ctx, projectID)
	if err != nil {
		return errorResult("Failed to read file", err), nil
	}

	data, err := t.mgr.ReadFile(ctx, id, p)
	if err != nil {
		return errorResult("Failed to read file", err), nil
	}
	if !utf8.Valid(data) {
		return errorResult("Failed to read file",
			sandbox.Invalid("%s is not a text file (%d bytes)", p, len(data))), nil
	}
	return successResult(map[string]any{
		"project_id": projectID,
		"path":       p,
		"content":    string(data),
	}), nil
}

func (t *Toolset) handleListFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := requireProjectID(req)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	p, err := workspacePath(req.GetString("path", sandbox.Workdir))
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	id, err := t.resolve(ctx, projectID)
	if err != nil {
		return errorResult("Failed to list files", err), nil
	}

	files, err := t.mgr.ListFiles(ctx, id, p)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to list %s", p), err), nil
	}
	return successResult(map[string]any{
		"project_id": projectID,
		"path":       p,
		"files":      files,
		"count":      len(files),
	}), nil
}
