// Package message defines the envelopes exchanged between the RPC client and server.
//
// A single Envelope type carries both directions of the wire protocol:
//
//	Client → Server: {"id": "...", "method": "...", "params": {...}}
//	Server → Client: {"id": "...", "result": ...} or {"id": "...", "error": {"code": n, "message": "..."}}
//
// The id is the correlation ID. It is opaque to the server, which copies it verbatim
// into the matching response.
package message

import (
	"encoding/json"
	"errors"
)

// Envelope is one protocol message.
//
//   - Call:     ID and Method are set, Params holds the operation arguments.
//   - Response: ID is set, exactly one of Result or Error is present.
type Envelope struct {
	ID     string          `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// NewCall builds a Call Envelope. A nil params value is sent as an empty object.
func NewCall(id, method string, params any) (*Envelope, error) {
	if params == nil {
		params = struct{}{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Envelope{ID: id, Method: method, Params: raw}, nil
}

// NewResult builds a successful Response Envelope.
func NewResult(id string, result any) (*Envelope, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Envelope{ID: id, Result: raw}, nil
}

// NewError builds a failed Response Envelope.
func NewError(id string, code int, msg string) *Envelope {
	return &Envelope{ID: id, Error: &RPCError{Code: code, Message: msg}}
}

// IsCall reports whether the envelope is a request.
func (e *Envelope) IsCall() bool {
	return e.Method != ""
}

// ValidateCall checks the structural rules of a Call Envelope.
func (e *Envelope) ValidateCall() error {
	if e.ID == "" {
		return errors.New("call envelope missing id")
	}
	if e.Method == "" {
		return errors.New("call envelope missing method")
	}
	if e.Result != nil || e.Error != nil {
		return errors.New("call envelope carries a result or error")
	}
	return nil
}

// ValidateResponse checks the structural rules of a Response Envelope.
func (e *Envelope) ValidateResponse() error {
	if e.ID == "" {
		return errors.New("response envelope missing id")
	}
	hasResult := len(e.Result) > 0
	hasError := e.Error != nil
	if hasResult == hasError {
		return errors.New("response envelope must carry exactly one of result or error")
	}
	return nil
}

// SalvageID tries to recover the id of a message that failed full decoding.
// It returns "" when no usable id is present.
func SalvageID(data []byte) string {
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil || len(head.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(head.ID, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(head.ID, &n); err == nil {
		return n.String()
	}
	return ""
}
