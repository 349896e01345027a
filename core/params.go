package core

import (
	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrInvalidParams marks a request whose arguments a handler cannot use.
var ErrInvalidParams = errors.New("invalid parameters")

func param(req mcp.CallToolRequest, key string, required bool) (any, bool, error) {
	val, exists := req.Params.Arguments[key]
	if !exists || val == nil {
		if required {
			return nil, false, errors.Mark(errors.Newf("missing required parameter: '%s'", key), ErrInvalidParams)
		}
		return nil, false, nil
	}
	return val, true, nil
}

// StringParam extracts a string argument.
func StringParam(req mcp.CallToolRequest, key string, required bool) (string, error) {
	val, ok, err := param(req, key, required)
	if !ok {
		return "", err
	}

	str, ok := val.(string)
	if !ok {
		return "", errors.Mark(errors.Newf("parameter '%s' must be a string", key), ErrInvalidParams)
	}
	return str, nil
}

// MapParam extracts an object argument.
func MapParam(req mcp.CallToolRequest, key string, required bool) (map[string]any, error) {
	val, ok, err := param(req, key, required)
	if !ok {
		return nil, err
	}

	m, ok := val.(map[string]any)
	if !ok {
		return nil, errors.Mark(errors.Newf("parameter '%s' must be an object", key), ErrInvalidParams)
	}
	return m, nil
}

// ArrayParam extracts an array argument.
func ArrayParam(req mcp.CallToolRequest, key string, required bool) ([]any, error) {
	val, ok, err := param(req, key, required)
	if !ok {
		return nil, err
	}

	arr, ok := val.([]any)
	if !ok {
		return nil, errors.Mark(errors.Newf("parameter '%s' must be an array", key), ErrInvalidParams)
	}
	return arr, nil
}

// ParameterError turns a parameter problem into a tool error result.
func ParameterError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}
