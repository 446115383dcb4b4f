package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

var localTools = map[string]bool{
	"show_history":        true,
	"show_commit_details": true,
	"revert_commit":       true,
}

// RegisterProxies mirrors the remote entity tools on this server,
// routing each call through the tracking session so writes are recorded
// before the result goes back to the agent.
func (s *Server) RegisterProxies(tools []*sdk.Tool) {
	for _, tool := range tools {
		if tool == nil || localTools[tool.Name] {
			continue
		}
		name := tool.Name
		s.mcp.AddTool(&sdk.Tool{
			Name:        name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}, func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			args, err := decodeArgs(req.Params.Arguments)
			if err != nil {
				return nil, fmt.Errorf("decoding arguments for %s: %w", name, err)
			}

			payload, err := s.session.Call(ctx, name, args)
			if err != nil {
				return &sdk.CallToolResult{
					IsError: true,
					Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}},
				}, nil
			}

			data, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("encoding result of %s: %w", name, err)
			}
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: string(data)}},
			}, nil
		})
	}
}

// decodeArgs normalizes whatever shape the transport hands us into the
// map the interceptor works with.
func decodeArgs(raw any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	if args, ok := raw.(map[string]any); ok {
		return args, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	args := map[string]any{}
	if len(data) == 0 || string(data) == "null" {
		return args, nil
	}
	// json.Number keeps large entity ids exact.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	return args, nil
}
