package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
)

// NewMCPServer creates an MCP server exposing the pipeline as tools.
func NewMCPServer(p Pipeline, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"parcel",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("parcel turns plain-language requests into record changes. "+
			"Submit text, show the returned preview to the user, and decide only after they answer."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("submit_text",
			mcp.WithDescription("Propose a client, property or transaction change from plain text. Nothing is written until the proposal is confirmed."),
			mcp.WithString("text", mcp.Description("The request, e.g. 'create client Jane Doe, jane@example.com'"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Conversation identifier; one pending proposal is kept per session"), mcp.Required()),
			mcp.WithString("source", mcp.Description("chat (default) or email")),
		),
		mcpSubmit(p),
	)

	s.AddTool(
		mcp.NewTool("decide_operation",
			mcp.WithDescription("Confirm or reject a pending proposal."),
			mcp.WithString("operation_id", mcp.Description("Proposal id returned by submit_text"), mcp.Required()),
			mcp.WithString("decision", mcp.Description("confirm or reject"), mcp.Required()),
			mcp.WithString("resolution", mcp.Description("merge, skip or replace when the proposal reports a conflict")),
			mcp.WithObject("overrides", mcp.Description("Field corrections applied before confirming, e.g. {\"phone\": \"555 333 4444\"}")),
		),
		mcpDecide(p),
	)

	s.AddTool(
		mcp.NewTool("get_operation",
			mcp.WithDescription("Show a proposal's status, preview and result."),
			mcp.WithString("operation_id", mcp.Description("Proposal id"), mcp.Required()),
		),
		mcpGetOperation(p),
	)

	return s
}

func mcpSubmit(p Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		session, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		source := model.SourceChat
		if strings.EqualFold(req.GetString("source", ""), string(model.SourceEmail)) {
			source = model.SourceEmail
		}

		out, err := p.Submit(ctx, model.RawInput{Text: text, Source: source, SessionID: session, ReceivedAt: time.Now()})
		if err != nil {
			return mcpError(userMessage(err)), nil
		}
		return mcpJSON(out.Message, submitResponse(out), false), nil
	}
}

func mcpDecide(p Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("operation_id")
		if err != nil {
			return mcpError("operation_id is required"), nil
		}
		decision, err := req.RequireString("decision")
		if err != nil {
			return mcpError("decision is required"), nil
		}

		wire := DecideRequest{
			OperationID: id,
			Decision:    decision,
			Resolution:  req.GetString("resolution", ""),
		}
		if raw, ok := req.GetArguments()["overrides"].(map[string]any); ok && len(raw) > 0 {
			wire.Overrides = make(map[string]string, len(raw))
			for k, v := range raw {
				wire.Overrides[k] = fmt.Sprint(v)
			}
		}
		confirmation, err := wire.toConfirmation()
		if err != nil {
			return mcpError(err.Error()), nil
		}

		out, err := p.Decide(ctx, confirmation)
		resp := decideResponse(id, out)
		if err != nil {
			var conflict *common.ConflictFailure
			isConflict := errors.As(err, &conflict)
			if resp.Message == "" {
				resp.Message = userMessage(err)
			}
			// A conflict comes with a follow-up proposal, which is a normal answer.
			return mcpJSON(resp.Message, resp, !isConflict), nil
		}
		return mcpJSON(resp.Message, resp, false), nil
	}
}

func mcpGetOperation(p Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("operation_id")
		if err != nil {
			return mcpError("operation_id is required"), nil
		}
		op, err := p.Get(ctx, id)
		if err != nil {
			return mcpError(userMessage(err)), nil
		}
		return mcpJSON(op.PreviewText(), operationPayload(op), false), nil
	}
}

// mcpJSON returns the user-facing message followed by the structured payload.
func mcpJSON(message string, payload any, isError bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal response: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: message},
			mcp.TextContent{Type: "text", Text: string(data)},
		},
		IsError: isError,
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
