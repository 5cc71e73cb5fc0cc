package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

// Envelope is the JSON document every tool returns.
type Envelope struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed tool call.
type ErrorBody struct {
	Type        string   `json:"type"`
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	BuildErrors []string `json:"build_errors,omitempty"`
	ExitCode    *int     `json:"exit_code,omitempty"`
}

// Error types reported for failures that do not originate in the sandbox
// layer.
const (
	TypeBuildFailed       = "build_failed"
	TypeCommandFailed     = "command_failed"
	TypeConnectionRefused = "connection_refused"
	TypeRequestFailed     = "request_failed"
	TypeInternal          = "internal_error"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func jsonResult(env Envelope) *mcp.CallToolResult {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return errResult(&ErrorBody{Type: TypeInternal, Message: "encoding tool result", Details: err.Error()})
	}
	res := textResult(string(data))
	res.IsError = env.Status == "error"
	return res
}

func successResult(data any) *mcp.CallToolResult {
	return jsonResult(Envelope{Status: "success", Data: data})
}

func errResult(body *ErrorBody) *mcp.CallToolResult {
	return jsonResult(Envelope{Status: "error", Error: body})
}

// errorResult converts err into an error envelope, keeping the tagged kind
// and remediation hints of sandbox errors.
func errorResult(message string, err error) *mcp.CallToolResult {
	body := &ErrorBody{Type: TypeInternal, Message: message}
	var se *sandbox.Error
	if errors.As(err, &se) {
		body.Type = string(se.Kind)
		body.Message = se.Message
		body.Suggestions = se.Suggestions
		if se.Cause != nil {
			body.Details = se.Cause.Error()
		}
		if se.Kind == sandbox.KindValidation && message != "" {
			body.Message = "Invalid input parameters: " + se.Message
		}
	} else if err != nil {
		body.Details = err.Error()
	}
	return errResult(body)
}

// concise keeps the first n lines of s.
func concise(s string, n int) string {
	lines := strings.SplitAfter(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "") + "... (output truncated, use detail_level='full')\n"
}
