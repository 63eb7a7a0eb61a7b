// Package protocol defines the wire envelope: the request shape, the three
// response shapes, and the mapping from failure classes to status codes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"toolcall/internal/domain"
)

type Command string

const (
	ListTools Command = "LIST_TOOLS"
	CallTool  Command = "CALL_TOOL"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const (
	invalidCommandMessage = "Invalid command."
	internalErrorMessage  = "Internal server error."
)

// Request is an inbound envelope. Parameters and Context default to empty.
type Request struct {
	Command    Command        `json:"command"`
	ToolID     string         `json:"tool_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Context    domain.Context `json:"context,omitempty"`
}

// Validate checks the command kind before any registry or context access.
func (r Request) Validate() error {
	switch r.Command {
	case ListTools, CallTool:
		return nil
	case "":
		return fmt.Errorf("%w: missing command", domain.ErrInvalidCommand)
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidCommand, r.Command)
	}
}

// wireRequest defers typing every field but command, so a LIST_TOOLS with
// stray fields is still a LIST_TOOLS.
type wireRequest struct {
	Command    json.RawMessage `json:"command"`
	ToolID     json.RawMessage `json:"tool_id"`
	Parameters json.RawMessage `json:"parameters"`
	Context    json.RawMessage `json:"context"`
}

// Decode reads one JSON request from r. Only the command is checked here;
// parameters and context are decoded for CALL_TOOL alone and must be objects.
// A non-string tool_id is kept as its JSON text so it resolves as not found.
func Decode(r io.Reader) (Request, error) {
	var wire wireRequest
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidCommand, err)
	}

	req := Request{Parameters: map[string]any{}, Context: domain.Context{}}
	if !isNull(wire.Command) {
		var cmd string
		if err := json.Unmarshal(wire.Command, &cmd); err != nil {
			return Request{}, fmt.Errorf("%w: command must be a string", domain.ErrInvalidCommand)
		}
		req.Command = Command(cmd)
	}
	if req.Command != CallTool {
		return req, nil
	}

	req.ToolID = toolID(wire.ToolID)
	if !isNull(wire.Parameters) {
		if err := json.Unmarshal(wire.Parameters, &req.Parameters); err != nil {
			return Request{}, fmt.Errorf("%w: parameters: %w", domain.ErrInvalidCommand, err)
		}
	}
	if !isNull(wire.Context) {
		if err := json.Unmarshal(wire.Context, &req.Context); err != nil {
			return Request{}, fmt.Errorf("%w: context: %w", domain.ErrInvalidCommand, err)
		}
	}
	return req, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func toolID(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	return string(raw)
}

type responseKind int

const (
	kindError responseKind = iota
	kindList
	kindCall
)

// Response is one of the three outbound shapes. Build it with ListResponse,
// CallResponse or ErrorResponse.
type Response struct {
	Status  Status
	Tools   []domain.ToolDescriptor
	Output  any
	Context domain.Context
	Message string

	kind responseKind
}

func ListResponse(tools []domain.ToolDescriptor) Response {
	if tools == nil {
		tools = []domain.ToolDescriptor{}
	}
	return Response{Status: StatusSuccess, Tools: tools, kind: kindList}
}

func CallResponse(output any, tc domain.Context) Response {
	if tc == nil {
		tc = domain.Context{}
	}
	return Response{Status: StatusSuccess, Output: output, Context: tc, kind: kindCall}
}

func ErrorResponse(message string) Response {
	return Response{Status: StatusError, Message: message, kind: kindError}
}

func (r Response) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindList:
		return json.Marshal(struct {
			Status Status                  `json:"status"`
			Tools  []domain.ToolDescriptor `json:"tools"`
		}{r.Status, r.Tools})
	case kindCall:
		return json.Marshal(struct {
			Status  Status         `json:"status"`
			Output  any            `json:"output"`
			Context domain.Context `json:"context"`
		}{r.Status, r.Output, r.Context})
	default:
		return json.Marshal(struct {
			Status  Status `json:"status"`
			Message string `json:"message"`
		}{StatusError, r.Message})
	}
}

// FromError maps a dispatch error to its envelope and HTTP status code.
func FromError(err error) (Response, int) {
	var fault *domain.CapabilityFault
	var notFound *domain.ToolNotFoundError
	switch {
	case errors.Is(err, domain.ErrInvalidCommand):
		return ErrorResponse(invalidCommandMessage), http.StatusBadRequest
	case errors.As(err, &notFound):
		return ErrorResponse(notFound.Error()), http.StatusNotFound
	case errors.As(err, &fault):
		return ErrorResponse(fault.Error()), http.StatusInternalServerError
	default:
		return ErrorResponse(internalErrorMessage), http.StatusInternalServerError
	}
}
