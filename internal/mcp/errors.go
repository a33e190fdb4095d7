// Package mcp exposes the vault over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
)

// MCP error codes.
const (
	// ErrCodeIndexUnavailable indicates the index is corrupt or was built
	// with another embedder.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeEmbeddingFailed indicates the embedding backend failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeNoteNotFound indicates no note matched the title or path.
	ErrCodeNoteNotFound = -32004

	// ErrCodeIndexBusy indicates another index transaction holds the lock.
	ErrCodeIndexBusy = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is an error with an MCP code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	var ne *nerrors.NoteError
	if errors.As(err, &ne) {
		return mapNoteError(ne)
	}

	return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error: " + err.Error()}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapNoteError(ne *nerrors.NoteError) *MCPError {
	message := ne.Message
	if ne.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ne.Message, ne.Suggestion)
	}

	switch ne.Code {
	case nerrors.ErrCodeNoteNotFound:
		return &MCPError{Code: ErrCodeNoteNotFound, Message: message}
	case nerrors.ErrCodeIndexBusy:
		return &MCPError{Code: ErrCodeIndexBusy, Message: message}
	case nerrors.ErrCodeCorruptIndex, nerrors.ErrCodeDimensionMismatch:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	case nerrors.ErrCodeEmbeddingFailed:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	}

	switch ne.Category {
	case nerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case nerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
