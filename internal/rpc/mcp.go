package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

var _ Caller = (*MCPCaller)(nil)

// MCPCaller reaches the remote entity API through an MCP client session.
type MCPCaller struct {
	session *sdk.ClientSession
}

func NewMCPCaller(session *sdk.ClientSession) *MCPCaller {
	return &MCPCaller{session: session}
}

func (c *MCPCaller) Call(ctx context.Context, name string, args map[string]any) (*Result, error) {
	res, err := c.session.CallTool(ctx, &sdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("calling tool %s: %w", name, err)
	}
	if res.IsError {
		return nil, fmt.Errorf("tool %s failed: %s", name, textContent(res))
	}

	raw, err := payloadValue(res)
	if err != nil {
		return nil, fmt.Errorf("decoding tool %s result: %w", name, err)
	}
	return decodeResult(raw)
}

func payloadValue(res *sdk.CallToolResult) (any, error) {
	if res.StructuredContent != nil {
		// Round-trip through JSON so nested values are plain maps and
		// slices regardless of how the SDK decoded them.
		encoded, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return nil, err
		}
		return decodeJSONValue(encoded)
	}

	text := textContent(res)
	if text == "" {
		return nil, nil
	}
	raw, err := decodeJSONValue([]byte(text))
	if err != nil {
		// Not JSON; hand the text through untouched.
		return text, nil
	}
	return raw, nil
}

// decodeJSONValue decodes with json.Number so entity ids above 2^53
// survive exactly instead of rounding through float64.
func decodeJSONValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func textContent(res *sdk.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(*sdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
