package middleware

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DANIELAGORA/leiberluna/message"
)

func echoHandler(ctx context.Context, req *message.Envelope) *message.Envelope {
	resp, _ := message.NewResult(req.ID, "ok")
	return resp
}

func slowHandler(ctx context.Context, req *message.Envelope) *message.Envelope {
	time.Sleep(200 * time.Millisecond)
	return echoHandler(ctx, req)
}

func newReq() *message.Envelope {
	return &message.Envelope{ID: "c1", Method: message.MethodGenerate}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	handler := LoggingMiddleware(zerolog.New(&buf))(echoHandler)

	resp := handler(context.Background(), newReq())
	require.NotNil(t, resp)
	assert.JSONEq(t, `"ok"`, string(resp.Result))
	assert.Contains(t, buf.String(), `"method":"generate"`)
	assert.Contains(t, buf.String(), `"id":"c1"`)
}

func TestLoggingRecordsErrorCode(t *testing.T) {
	var buf bytes.Buffer
	failing := func(ctx context.Context, req *message.Envelope) *message.Envelope {
		return message.NewError(req.ID, message.CodeHandlerError, "ollama down")
	}
	LoggingMiddleware(zerolog.New(&buf))(failing)(context.Background(), newReq())
	assert.Contains(t, buf.String(), `"code":-32000`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500*time.Millisecond, zerolog.Nop())(echoHandler)
	resp := handler(context.Background(), newReq())
	assert.Nil(t, resp.Error)
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50*time.Millisecond, zerolog.Nop())(slowHandler)
	resp := handler(context.Background(), newReq())
	require.NotNil(t, resp.Error)
	assert.Equal(t, message.CodeTimeout, resp.Error.Code)
	assert.Equal(t, "request timed out", resp.Error.Message)
	assert.Equal(t, "c1", resp.ID)
}

func TestTimeoutRecoversHandlerPanic(t *testing.T) {
	panicky := func(ctx context.Context, req *message.Envelope) *message.Envelope { panic("boom") }
	resp := TimeOutMiddleware(time.Second, zerolog.Nop())(panicky)(context.Background(), newReq())
	require.NotNil(t, resp.Error)
	assert.Equal(t, message.CodeInternal, resp.Error.Code)
}

func TestRecover(t *testing.T) {
	panicky := func(ctx context.Context, req *message.Envelope) *message.Envelope {
		var m map[string]int
		m["x"] = 1
		return nil
	}
	resp := RecoverMiddleware(zerolog.Nop())(panicky)(context.Background(), newReq())
	require.NotNil(t, resp.Error)
	assert.Equal(t, message.CodeInternal, resp.Error.Code)
	assert.Equal(t, "c1", resp.ID)
}

func TestRateLimit(t *testing.T) {
	handler := RateLimitMiddleware(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), newReq())
		assert.Nil(t, resp.Error, "request %d should pass", i)
	}

	resp := handler(context.Background(), newReq())
	require.NotNil(t, resp.Error)
	assert.Equal(t, message.CodeRateLimited, resp.Error.Code)
}

func TestRetryUnavailable(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, req *message.Envelope) *message.Envelope {
		if calls.Add(1) < 3 {
			return message.NewError(req.ID, message.CodeUnavailable, "connection refused")
		}
		return echoHandler(ctx, req)
	}

	resp := RetryMiddleware(3, time.Millisecond, zerolog.Nop())(flaky)(context.Background(), newReq())
	assert.Nil(t, resp.Error)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetrySkipsOtherErrors(t *testing.T) {
	var calls atomic.Int32
	failing := func(ctx context.Context, req *message.Envelope) *message.Envelope {
		calls.Add(1)
		return message.NewError(req.ID, message.CodeInvalidParams, "bad")
	}

	resp := RetryMiddleware(3, time.Millisecond, zerolog.Nop())(failing)(context.Background(), newReq())
	assert.Equal(t, message.CodeInvalidParams, resp.Error.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetrySkipsOpenCircuit(t *testing.T) {
	var calls atomic.Int32
	open := func(ctx context.Context, req *message.Envelope) *message.Envelope {
		calls.Add(1)
		return message.NewError(req.ID, message.CodeCircuitOpen, "upstream: circuit open")
	}

	start := time.Now()
	resp := RetryMiddleware(3, 200*time.Millisecond, zerolog.Nop())(open)(context.Background(), newReq())
	assert.Equal(t, message.CodeCircuitOpen, resp.Error.Code)
	assert.Equal(t, int32(1), calls.Load())
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	down := func(ctx context.Context, req *message.Envelope) *message.Envelope {
		calls.Add(1)
		return message.NewError(req.ID, message.CodeUnavailable, "down")
	}

	resp := RetryMiddleware(2, time.Millisecond, zerolog.Nop())(down)(context.Background(), newReq())
	assert.Equal(t, message.CodeUnavailable, resp.Error.Code)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryStopsOnContextDone(t *testing.T) {
	down := func(ctx context.Context, req *message.Envelope) *message.Envelope {
		return message.NewError(req.ID, message.CodeUnavailable, "down")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	resp := RetryMiddleware(5, time.Second, zerolog.Nop())(down)(ctx, newReq())
	assert.Equal(t, message.CodeUnavailable, resp.Error.Code)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Envelope) *message.Envelope {
				order = append(order, name+".before")
				resp := next(ctx, req)
				order = append(order, name+".after")
				return resp
			}
		}
	}

	handler := Chain(mark("A"), mark("B"), TimeOutMiddleware(500*time.Millisecond, zerolog.Nop()))(echoHandler)
	resp := handler(context.Background(), newReq())
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
	assert.Equal(t, []string{"A.before", "B.before", "B.after", "A.after"}, order)
}
