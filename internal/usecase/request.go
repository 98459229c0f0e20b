package usecase

import "context"

// Request tracks one started pipeline. It settles exactly once.
type Request struct {
	generation uint64
	done       chan struct{}
	outcome    Outcome
}

func newRequest(generation uint64) *Request {
	return &Request{generation: generation, done: make(chan struct{})}
}

// Generation is the session generation assigned when the request started.
func (r *Request) Generation() uint64 { return r.generation }

// Done is closed once the request has settled.
func (r *Request) Done() <-chan struct{} { return r.done }

// Outcome returns the settled outcome; only meaningful after Done is closed.
func (r *Request) Outcome() Outcome {
	select {
	case <-r.done:
		return r.outcome
	default:
		return Outcome{}
	}
}

// Wait blocks until the request settles or ctx is done.
func (r *Request) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (r *Request) finish(o Outcome) {
	r.outcome = o
	close(r.done)
}
