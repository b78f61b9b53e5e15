package tool

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/flowkit/flowengine/flow"
)

// HTTPTool is the built-in External Tool Port (flow.Tool) for making GET
// and POST requests (§6). Failures are reported as *flow.FlowError so a
// node's RecoveryPolicy can distinguish a retryable network/timeout error
// from a permanent input-validation error.
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool creates an HTTP tool with default settings. Timeouts are
// enforced via the context passed to Call, not the client itself.
func NewHTTPTool() *HTTPTool {
	return &HTTPTool{client: &http.Client{}}
}

// Name returns the tool's catalog id.
func (h *HTTPTool) Name() string {
	return "http_request"
}

// Call issues the request described by input: method (GET/POST, default
// GET), url (required), headers (optional map), body (optional, POST
// only).
func (h *HTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	urlStr, ok := input["url"].(string)
	if !ok || urlStr == "" {
		return nil, flow.ToolErr(h.Name(), "url parameter required (string)", nil)
	}

	method := "GET"
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != "GET" && method != "POST" {
		return nil, flow.ToolErr(h.Name(), "unsupported HTTP method: "+method, nil)
	}

	var body io.Reader
	if bodyStr, ok := input["body"].(string); ok && bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, flow.ToolErr(h.Name(), "failed to build request", err)
	}

	if headers, ok := input["headers"].(map[string]interface{}); ok {
		for key, value := range headers {
			if valueStr, ok := value.(string); ok {
				req.Header.Set(key, valueStr)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		// Network failures and context deadlines are worth retrying;
		// malformed requests above are not.
		fe := flow.ToolErr(h.Name(), "request failed", err)
		fe.Retryable = true
		return nil, fe
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fe := flow.ToolErr(h.Name(), "failed to read response body", err)
		fe.Retryable = true
		return nil, fe
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[key] = values[0]
		} else {
			respHeaders[key] = values
		}
	}

	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	}, nil
}
