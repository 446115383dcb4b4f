package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrBridgeClosed = errors.New("call bridge closed")

type callRequest struct {
	name string
	args map[string]any
	resp chan callResponse
}

type callResponse struct {
	result *Result
	err    error
}

// Bridge marshals synchronous callers onto a session's single I/O
// consumer. One goroutine owns the underlying caller; Submit hands work
// across as a message and waits for the observed response with a bounded
// timeout, so no two calls for a session ever run concurrently.
type Bridge struct {
	requests chan callRequest
	done     chan struct{}
	once     sync.Once
}

func NewBridge(ctx context.Context, caller Caller) *Bridge {
	b := &Bridge{
		requests: make(chan callRequest),
		done:     make(chan struct{}),
	}
	go b.consume(ctx, caller)
	return b
}

func (b *Bridge) consume(ctx context.Context, caller Caller) {
	for {
		select {
		case <-ctx.Done():
			b.Close()
			return
		case <-b.done:
			return
		case req := <-b.requests:
			result, err := caller.Call(ctx, req.name, req.args)
			req.resp <- callResponse{result: result, err: err}
		}
	}
}

// Submit runs one call on the session's consumer and waits for its
// result. The timeout bounds the whole round trip; the submitted work is
// still observed by the consumer even if the submitter gave up, because
// the response channel is buffered.
func (b *Bridge) Submit(ctx context.Context, name string, args map[string]any, timeout time.Duration) (*Result, error) {
	req := callRequest{name: name, args: args, resp: make(chan callResponse, 1)}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-b.done:
		return nil, ErrBridgeClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("submitting call %s: %w", name, ctx.Err())
	case b.requests <- req:
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("awaiting call %s: %w", name, ctx.Err())
	case resp := <-req.resp:
		return resp.result, resp.err
	}
}

func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

// Caller adapts the bridge to the Caller interface with a fixed
// per-call timeout.
func (b *Bridge) Caller(timeout time.Duration) Caller {
	return bridgeCaller{bridge: b, timeout: timeout}
}

type bridgeCaller struct {
	bridge  *Bridge
	timeout time.Duration
}

func (c bridgeCaller) Call(ctx context.Context, name string, args map[string]any) (*Result, error) {
	return c.bridge.Submit(ctx, name, args, c.timeout)
}
