package mcptools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const methodToolsCall = "tools/call"

// LoggingMiddleware logs every tool call with its duration and outcome.
// Other methods pass through untouched.
func LoggingMiddleware() mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method != methodToolsCall {
				return next(ctx, method, req)
			}

			start := time.Now()
			result, err := next(ctx, method, req)

			attrs := []any{
				"tool", toolName(req),
				"duration", time.Since(start),
			}
			if session := sessionArg(req); session != "" {
				attrs = append(attrs, "session_id", session)
			}
			switch {
			case err != nil:
				slog.Warn("tool call failed", append(attrs, slogKeyError, err)...)
			case isErrorResult(result):
				slog.Info("tool call returned error result", attrs...)
			default:
				slog.Debug("tool call", attrs...)
			}
			return result, err
		}
	}
}

// toolName extracts the tool name from a tools/call request.
func toolName(req mcp.Request) string {
	params, ok := req.GetParams().(*mcp.CallToolParamsRaw)
	if !ok || params == nil {
		return ""
	}
	return params.Name
}

// sessionArg extracts the session_id argument, if any.
func sessionArg(req mcp.Request) string {
	params, ok := req.GetParams().(*mcp.CallToolParamsRaw)
	if !ok || params == nil || len(params.Arguments) == 0 {
		return ""
	}
	var in endInput
	if err := json.Unmarshal(params.Arguments, &in); err != nil {
		return ""
	}
	return in.SessionID
}

func isErrorResult(r mcp.Result) bool {
	res, ok := r.(*mcp.CallToolResult)
	return ok && res != nil && res.IsError
}
