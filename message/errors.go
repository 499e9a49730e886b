package message

import "fmt"

// Error codes carried in Response Envelopes. The reserved range follows JSON-RPC 2.0;
// the -320xx codes are server-defined.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	CodeHandlerError = -32000 // handler or upstream failure
	CodeTimeout      = -32001 // handler exceeded the server-side deadline
	CodeRateLimited  = -32002
	CodeUnavailable  = -32003 // upstream unreachable or overloaded; worth retrying
	CodeCircuitOpen  = -32004 // upstream breaker open; not retried
)

// RPCError is the error member of a failed Response Envelope.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ProtocolError reports a message that could not be decoded into a valid envelope.
// The connection that produced it is still usable.
type ProtocolError struct {
	ID  string // salvaged correlation ID, empty if none
	Err error
}

func (e *ProtocolError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("protocol violation (id %s): %v", e.ID, e.Err)
	}
	return fmt.Sprintf("protocol violation: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
