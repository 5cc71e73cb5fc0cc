package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

const (
	dockerHostAlias   = "host.docker.internal"
	maxEndpointBody   = 1 << 20
	defaultProbeLimit = 30 * time.Second
)

// translateLocalhost rewrites loopback hosts so a containerized server can
// reach ports published on the Docker host.
func translateLocalhost(raw string, inContainer bool) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", sandbox.Invalid("invalid url %q", raw)
	}
	if !inContainer {
		return u.String(), nil
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1":
		if port := u.Port(); port != "" {
			u.Host = dockerHostAlias + ":" + port
		} else {
			u.Host = dockerHostAlias
		}
	}
	return u.String(), nil
}

func (t *Toolset) handleTestEndpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return errorResult("Invalid input parameters", sandbox.Invalid("url is required")), nil
	}
	target, err := translateLocalhost(rawURL, t.inContainer())
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	method := strings.ToUpper(req.GetString("method", http.MethodGet))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return errorResult("Invalid input parameters", sandbox.Invalid("unsupported method %q", method)), nil
	}
	timeout, err := secondsArg(req, "timeout", defaultProbeLimit, maxCommandTimeout)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}

	var body io.Reader
	if b := req.GetString("body", ""); b != "" && (method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch) {
		body = strings.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return errorResult("Invalid input parameters", sandbox.Invalid("building request: %v", err)), nil
	}
	headers, _ := req.GetArguments()["headers"].(map[string]any)
	for k, v := range headers {
		httpReq.Header.Set(k, fmt.Sprint(v))
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return endpointError(rawURL, timeout, err), nil
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxEndpointBody))
	if err != nil {
		return endpointError(rawURL, timeout, err), nil
	}
	elapsed := time.Since(start)

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}
	text := string(respBody)
	if !fullDetail(req) {
		text = concise(text, conciseLines)
	}
	data := map[string]any{
		"method":           method,
		"url":              rawURL,
		"status_code":      resp.StatusCode,
		"response_body":    text,
		"response_headers": respHeaders,
		"response_time_ms": elapsed.Milliseconds(),
	}
	if resp.StatusCode >= 400 {
		return jsonResult(Envelope{Status: "error", Data: data, Error: &ErrorBody{
			Type:    TypeRequestFailed,
			Message: fmt.Sprintf("%s %s returned %d", method, rawURL, resp.StatusCode),
		}}), nil
	}
	return successResult(data), nil
}

func endpointError(rawURL string, timeout time.Duration, err error) *mcp.CallToolResult {
	var netErr interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		return errResult(&ErrorBody{
			Type:    string(sandbox.KindTimeout),
			Message: fmt.Sprintf("Request timed out after %s", timeout),
			Details: fmt.Sprintf("Could not connect to %s", rawURL),
			Suggestions: []string{
				"Check if the server is running",
				"Verify the port mapping is correct",
				"Use dotnet_get_logs to check server startup",
				"Increase timeout if server is slow to start",
			},
		})
	case errors.Is(err, syscall.ECONNREFUSED):
		return errResult(&ErrorBody{
			Type:    TypeConnectionRefused,
			Message: "Connection refused",
			Details: err.Error(),
			Suggestions: []string{
				"Check if the server is running: dotnet_get_logs",
				"Verify the URL and host port are correct",
				"Ensure port mapping was configured: dotnet_start_container(ports={...})",
				"Wait a bit longer for the server to start",
			},
		})
	}
	return errResult(&ErrorBody{Type: TypeRequestFailed, Message: "HTTP request failed", Details: err.Error()})
}
