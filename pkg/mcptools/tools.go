// Package mcptools exposes the interview as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-interviewer/pkg/engine"
	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/session"
)

// Tool names.
const (
	ToolStart = "interview_start"
	ToolReply = "interview_reply"
	ToolEnd   = "interview_end"
)

const slogKeyError = "error"

// Interviewer runs interview sessions.
type Interviewer interface {
	Start(ctx context.Context) (string, engine.Reply, error)
	Turn(ctx context.Context, sessionID, message string) (engine.Reply, error)
	End(ctx context.Context, sessionID string) error
}

// startInput is empty since interview_start has no parameters.
type startInput struct{}

type replyInput struct {
	SessionID string `json:"session_id" jsonschema:"Session id returned by interview_start"`
	Message   string `json:"message" jsonschema:"The candidate's message, answer or question"`
}

type endInput struct {
	SessionID string `json:"session_id" jsonschema:"Session id returned by interview_start"`
}

// turnOutput is the JSON body of interview_start and interview_reply results.
type turnOutput struct {
	SessionID      string          `json:"session_id"`
	Reply          string          `json:"reply"`
	State          interview.State `json:"state,omitempty"`
	QuestionID     string          `json:"question_id,omitempty"`
	Completed      bool            `json:"completed,omitempty"`
	SessionExpired bool            `json:"session_expired,omitempty"`
}

type endOutput struct {
	OK bool `json:"ok"`
}

// Toolkit registers the interview tools on an MCP server.
type Toolkit struct {
	interviewer Interviewer
}

// New creates a Toolkit.
func New(i Interviewer) *Toolkit {
	return &Toolkit{interviewer: i}
}

// NewServer creates an MCP server with the interview tools registered.
func NewServer(name, version string, i Interviewer) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, &mcp.ServerOptions{
		Instructions: "Runs a practice technical interview. Call interview_start, relay the reply " +
			"to the candidate, then pass each candidate message to interview_reply until the " +
			"interview is completed. Call interview_end to discard the session.",
	})
	s.AddReceivingMiddleware(LoggingMiddleware())
	New(i).Register(s)
	return s
}

// Register adds the tools to s.
func (t *Toolkit) Register(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolStart,
		Description: "Start a new interview session and return its id and greeting.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ startInput) (*mcp.CallToolResult, any, error) {
		return t.handleStart(ctx)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolReply,
		Description: "Send the candidate's message to an interview session and return the interviewer's reply.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in replyInput) (*mcp.CallToolResult, any, error) {
		return t.handleReply(ctx, in)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolEnd,
		Description: "End an interview session and discard its state. Ending an unknown session succeeds.",
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in endInput) (*mcp.CallToolResult, any, error) {
		return t.handleEnd(ctx, in)
	})
}

func (t *Toolkit) handleStart(ctx context.Context) (*mcp.CallToolResult, any, error) {
	id, reply, err := t.interviewer.Start(ctx)
	if err != nil {
		slog.Error("starting session failed", slogKeyError, err)
		return errorResult(engine.ServiceErrorMessage), nil, nil
	}
	return jsonResult(turnOutput{SessionID: id, Reply: reply.Text, State: reply.State}), nil, nil
}

func (t *Toolkit) handleReply(ctx context.Context, in replyInput) (*mcp.CallToolResult, any, error) {
	reply, err := t.interviewer.Turn(ctx, in.SessionID, in.Message)
	switch {
	case err == nil:
		return jsonResult(turnOutput{
			SessionID:  in.SessionID,
			Reply:      reply.Text,
			State:      reply.State,
			QuestionID: reply.QuestionID,
			Completed:  reply.Completed,
		}), nil, nil
	case errors.Is(err, engine.ErrEmptyMessage):
		return errorResult(engine.EmptyMessageReply), nil, nil
	case errors.Is(err, session.ErrNotFound):
		return jsonResult(turnOutput{
			SessionID:      in.SessionID,
			Reply:          engine.SessionExpiredMessage,
			SessionExpired: true,
		}), nil, nil
	default:
		slog.Error("processing turn failed", "session_id", in.SessionID, slogKeyError, err)
		return errorResult(engine.ServiceErrorMessage), nil, nil
	}
}

func (t *Toolkit) handleEnd(ctx context.Context, in endInput) (*mcp.CallToolResult, any, error) {
	if in.SessionID != "" {
		if err := t.interviewer.End(ctx, in.SessionID); err != nil {
			slog.Warn("ending session failed", "session_id", in.SessionID, slogKeyError, err)
		}
	}
	return jsonResult(endOutput{OK: true}), nil, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("Error: " + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
