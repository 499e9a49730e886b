package server

import (
	"context"
	"errors"

	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/upstream"
)

// Service answers the typed requests. *assistant.Service implements it.
type Service interface {
	Generate(ctx context.Context, req *message.GenerateRequest) (string, error)
	AnalyzeDocument(ctx context.Context, req *message.AnalyzeDocumentRequest) (*message.AnalysisResult, error)
	GenerateDocument(ctx context.Context, req *message.GenerateDocumentRequest) (string, error)
	Capabilities() []message.Capability
}

// dispatch is the innermost handler: decode the call into its request variant, run
// it, and wrap the outcome in a Response Envelope. It never returns nil.
func (s *Server) dispatch(ctx context.Context, call *message.Envelope) *message.Envelope {
	req, err := message.DecodeRequest(call)
	if err != nil {
		if errors.Is(err, message.ErrUnknownMethod) {
			return message.NewError(call.ID, message.CodeMethodNotFound, err.Error())
		}
		return message.NewError(call.ID, message.CodeInvalidParams, err.Error())
	}

	var result any
	switch r := req.(type) {
	case *message.GenerateRequest:
		result, err = s.svc.Generate(ctx, r)
	case *message.AnalyzeDocumentRequest:
		result, err = s.svc.AnalyzeDocument(ctx, r)
	case *message.GenerateDocumentRequest:
		result, err = s.svc.GenerateDocument(ctx, r)
	case *message.ListCapabilitiesRequest:
		result = s.svc.Capabilities()
	default:
		return message.NewError(call.ID, message.CodeMethodNotFound, "unsupported method: "+call.Method)
	}
	if err != nil {
		return message.NewError(call.ID, errorCode(err), err.Error())
	}

	resp, err := message.NewResult(call.ID, result)
	if err != nil {
		return message.NewError(call.ID, message.CodeInternal, "encode result: "+err.Error())
	}
	return resp
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, upstream.ErrCircuitOpen):
		return message.CodeCircuitOpen
	case upstream.Retryable(err):
		return message.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return message.CodeTimeout
	default:
		return message.CodeHandlerError
	}
}
