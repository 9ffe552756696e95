package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var patchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"x":               map[string]any{"type": "number"},
		"y":               map[string]any{"type": "number"},
		"width":           map[string]any{"type": "number"},
		"height":          map[string]any{"type": "number"},
		"zOrder":          map[string]any{"type": "integer"},
		"strokeColor":     map[string]any{"type": "string"},
		"fillColor":       map[string]any{"type": "string"},
		"strokeWidth":     map[string]any{"type": "number"},
		"cornerRoundness": map[string]any{"type": "number"},
		"fontSize":        map[string]any{"type": "number"},
		"text":            map[string]any{"type": "string"},
		"groupId":         map[string]any{"type": "string"},
	},
}

// Register adds every canvas tool to an MCP server.
//
// Arguments arrive as json.RawMessage in req.Params.Arguments. Tool
// failures go through result.SetError with a nil Go error; a non-nil
// error from the handler would be a JSON-RPC protocol error, not a
// tool error.
func Register(srv *mcp.Server, svc *Service) {
	srv.AddTool(&mcp.Tool{
		Name:        "create_element",
		Description: "Create a canvas element (rectangle, ellipse, text, arrow, freeform) at the given position and size.",
		InputSchema: inputSchema(map[string]any{
			"kind":            map[string]any{"type": "string", "enum": []string{"rectangle", "ellipse", "text", "arrow", "freeform"}},
			"x":               map[string]any{"type": "number"},
			"y":               map[string]any{"type": "number"},
			"width":           map[string]any{"type": "number"},
			"height":          map[string]any{"type": "number"},
			"strokeColor":     map[string]any{"type": "string"},
			"fillColor":       map[string]any{"type": "string"},
			"strokeWidth":     map[string]any{"type": "number"},
			"cornerRoundness": map[string]any{"type": "number"},
			"fontSize":        map[string]any{"type": "number"},
			"text":            map[string]any{"type": "string"},
			"groupId":         map[string]any{"type": "string"},
		}, []string{"kind", "x", "y", "width", "height"}),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CreateElementRequest
		if err := decodeArgs(req, &args); err != nil {
			return errResult(err), nil
		}
		res, err := svc.CreateElement(args)
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(res)
	})

	srv.AddTool(&mcp.Tool{
		Name:        "update_element",
		Description: "Patch an existing element by id. Only the provided patch fields change.",
		InputSchema: inputSchema(map[string]any{
			"id":    map[string]any{"type": "string"},
			"patch": patchSchema,
		}, []string{"id", "patch"}),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args UpdateElementRequest
		if err := decodeArgs(req, &args); err != nil {
			return errResult(err), nil
		}
		res, err := svc.UpdateElement(args)
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(res)
	})

	srv.AddTool(&mcp.Tool{
		Name:        "delete_element",
		Description: "Delete an element by id.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string"},
		}, []string{"id"}),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args DeleteElementRequest
		if err := decodeArgs(req, &args); err != nil {
			return errResult(err), nil
		}
		res, err := svc.DeleteElement(args)
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(res)
	})

	srv.AddTool(&mcp.Tool{
		Name:        "clear",
		Description: "Remove every element from the canvas.",
		InputSchema: inputSchema(nil, nil),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := svc.Clear()
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(res)
	})

	srv.AddTool(&mcp.Tool{
		Name:        "create_template",
		Description: "Expand a named template (dashboard, kanban, flowchart) into a batch of elements at the given origin. All-or-nothing: an invalid constituent aborts the whole template.",
		InputSchema: inputSchema(map[string]any{
			"name":    map[string]any{"type": "string"},
			"originX": map[string]any{"type": "number"},
			"originY": map[string]any{"type": "number"},
		}, []string{"name"}),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CreateTemplateRequest
		if err := decodeArgs(req, &args); err != nil {
			return errResult(err), nil
		}
		res, err := svc.CreateTemplate(ctx, args)
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(res)
	})

	srv.AddTool(&mcp.Tool{
		Name:        "query_state",
		Description: "Return the authoritative canvas snapshot: version and all elements.",
		InputSchema: inputSchema(nil, nil),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(svc.QueryState())
	})

	srv.AddTool(&mcp.Tool{
		Name:        "analyze",
		Description: "Analyze the canvas: element counts, colour usage, grid compliance score and layout suggestions.",
		InputSchema: inputSchema(nil, nil),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(svc.Analyze())
	})

	srv.AddTool(&mcp.Tool{
		Name:        "arrange",
		Description: "Recompute element positions with a layout strategy (grid, stack, flow, hierarchical) and apply them as ordinary updates.",
		InputSchema: inputSchema(map[string]any{
			"strategy": map[string]any{"type": "string", "enum": []string{"grid", "stack", "flow", "hierarchical"}},
			"ids":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"params": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"originX":  map[string]any{"type": "number"},
					"originY":  map[string]any{"type": "number"},
					"columns":  map[string]any{"type": "integer"},
					"unit":     map[string]any{"type": "number"},
					"spacing":  map[string]any{"type": "number"},
					"maxWidth": map[string]any{"type": "number"},
					"indent":   map[string]any{"type": "number"},
				},
			},
		}, []string{"strategy"}),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ArrangeRequest
		if err := decodeArgs(req, &args); err != nil {
			return errResult(err), nil
		}
		res, err := svc.Arrange(args)
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(res)
	})
}

func decodeArgs(req *mcp.CallToolRequest, v any) error {
	if req.Params.Arguments == nil {
		return fmt.Errorf("missing arguments")
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errResult(fmt.Errorf("marshal result: %w", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func errResult(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
