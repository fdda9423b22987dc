package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/qnadeck/internal/errors"
	"github.com/hpungsan/qnadeck/internal/gateway"
)

// decode unmarshals tool arguments into T. Argument errors come back as
// INVALID_REQUEST so handlers can return them unchanged.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("marshal args: %v", err))
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("unmarshal args: %v", err))
	}
	return result, nil
}

// requireID rejects ids of unsaved items.
func requireID(id int64) error {
	if id <= 0 {
		return errors.NewInvalidRequest("id is required and must be positive")
	}
	return nil
}

// formatArg parses a format argument, defaulting to json.
func formatArg(s string) (gateway.Format, error) {
	if s == "" {
		return gateway.FormatJSON, nil
	}
	return gateway.ParseFormat(s)
}
