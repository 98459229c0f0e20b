package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/aerofindr/internal/logging"
	"github.com/example/aerofindr/internal/lookup"
	"github.com/example/aerofindr/internal/metadata"
	"github.com/example/aerofindr/internal/photos"
)

// Observer receives every state a session passes through, in order.
type Observer interface {
	Publish(ctx context.Context, sessionID string, state State) error
}

// StateReader loads the last published state of a session this process does not own.
type StateReader interface {
	Load(ctx context.Context, sessionID string) (State, bool, error)
}

// Extractor reads location and capture time from encoded image bytes.
type Extractor func(data []byte) (*metadata.ImageMetadata, bool)

// Option customises a FlightLookupUseCase.
type Option func(*FlightLookupUseCase)

// WithObservers registers observers notified on every state change.
func WithObservers(observers ...Observer) Option {
	return func(uc *FlightLookupUseCase) { uc.observers = append(uc.observers, observers...) }
}

// WithStateReader sets the fallback used by State for unknown sessions.
func WithStateReader(reader StateReader) Option {
	return func(uc *FlightLookupUseCase) { uc.stateReader = reader }
}

// WithClock replaces time.Now for the missing-timestamp default.
func WithClock(now func() time.Time) Option {
	return func(uc *FlightLookupUseCase) { uc.now = now }
}

// WithSessionIdleTTL evicts sessions that saw no request for ttl and have
// nothing in flight. Evicted sessions read from the state reader, if any.
func WithSessionIdleTTL(ttl time.Duration) Option {
	return func(uc *FlightLookupUseCase) { uc.idleTTL = ttl }
}

// WithExtractor replaces metadata.Extract.
func WithExtractor(extract Extractor) Option {
	return func(uc *FlightLookupUseCase) { uc.extract = extract }
}

// FlightLookupUseCase turns photos into the nearest flight at capture time.
// Each session holds one observable State; only the most recently started
// request of a session may write to it.
type FlightLookupUseCase struct {
	client         lookup.Client
	resolver       photos.Resolver
	extract        Extractor
	observers      []Observer
	stateReader    StateReader
	logger         *zap.Logger
	now            func() time.Time
	publishTimeout time.Duration
	idleTTL        time.Duration
	metrics        metricsRecorder

	mu        sync.Mutex
	sessions  map[string]*session
	lastSweep time.Time
}

type session struct {
	// lastActive is guarded by FlightLookupUseCase.mu.
	lastActive time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	cancel     context.CancelFunc
	dispatch   dispatcher
}

type imageLoader func(ctx context.Context) ([]byte, error)

// NewFlightLookupUseCase constructs a new use case instance.
func NewFlightLookupUseCase(client lookup.Client, resolver photos.Resolver, logger *zap.Logger, opts ...Option) *FlightLookupUseCase {
	uc := &FlightLookupUseCase{
		client:         client,
		resolver:       resolver,
		extract:        metadata.Extract,
		logger:         logger.Named("flight_lookup_usecase"),
		now:            time.Now,
		publishTimeout: 2 * time.Second,
		sessions:       make(map[string]*session),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ProcessImage starts a lookup for an in-memory photo and returns immediately.
func (uc *FlightLookupUseCase) ProcessImage(ctx context.Context, sessionID string, data []byte) *Request {
	return uc.start(ctx, sessionID, func(context.Context) ([]byte, error) {
		return data, nil
	})
}

// ProcessSelectedPhoto starts a lookup for a stored photo named by handle.
func (uc *FlightLookupUseCase) ProcessSelectedPhoto(ctx context.Context, sessionID, handle string) *Request {
	return uc.start(ctx, sessionID, func(ctx context.Context) ([]byte, error) {
		return uc.loadPhoto(ctx, sessionID, handle)
	})
}

// State returns the current state of a session. Sessions unknown to this
// process are read from the state reader when one is configured.
func (uc *FlightLookupUseCase) State(ctx context.Context, sessionID string) (State, error) {
	uc.mu.Lock()
	s, ok := uc.sessions[sessionID]
	uc.mu.Unlock()

	if ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.state, nil
	}

	if uc.stateReader != nil {
		st, found, err := uc.stateReader.Load(ctx, sessionID)
		if err != nil {
			return State{}, err
		}
		if found {
			return st, nil
		}
	}
	return State{}, nil
}

// session returns the session for sessionID, creating it if needed, and marks
// it active so a concurrent sweep cannot evict it.
func (uc *FlightLookupUseCase) session(sessionID string) *session {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	now := uc.now()
	uc.sweepLocked(now)

	s, ok := uc.sessions[sessionID]
	if !ok {
		s = &session{}
		uc.sessions[sessionID] = s
	}
	s.lastActive = now
	return s
}

// sweepLocked drops idle sessions at most once per idle TTL. Callers hold uc.mu.
func (uc *FlightLookupUseCase) sweepLocked(now time.Time) {
	if uc.idleTTL <= 0 || now.Sub(uc.lastSweep) < uc.idleTTL {
		return
	}
	uc.lastSweep = now

	for id, s := range uc.sessions {
		if now.Sub(s.lastActive) < uc.idleTTL {
			continue
		}
		s.mu.Lock()
		inFlight := s.cancel != nil
		s.mu.Unlock()
		if !inFlight {
			delete(uc.sessions, id)
		}
	}
}

// start resets the session, supersedes any in-flight request and runs the
// pipeline in its own goroutine. The pipeline outlives ctx's cancellation but
// keeps its values.
func (uc *FlightLookupUseCase) start(ctx context.Context, sessionID string, load imageLoader) *Request {
	s := uc.session(sessionID)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	s.cancel = cancel
	uc.setLocked(sessionID, s, State{IsLoading: true, Generation: gen})
	s.mu.Unlock()

	req := newRequest(gen)
	go uc.run(runCtx, cancel, sessionID, s, req, load)
	return req
}

func (uc *FlightLookupUseCase) run(ctx context.Context, cancel context.CancelFunc, sessionID string, s *session, req *Request, load imageLoader) {
	defer cancel()
	started := time.Now()
	gen := req.Generation()
	opLogger := logging.WithSession(uc.logger, sessionID, gen)

	outcome := uc.pipeline(ctx, load, opLogger)
	outcome.Generation = gen

	s.mu.Lock()
	if s.generation != gen {
		opLogger.Info("discarding superseded lookup", zap.String("kind", string(outcome.Kind)))
		outcome = Outcome{Kind: OutcomeSuperseded, Generation: gen}
	} else {
		uc.setLocked(sessionID, s, outcome.apply(gen))
		s.cancel = nil
	}
	s.mu.Unlock()

	uc.metrics.record(outcome.Kind, time.Since(started))
	req.finish(outcome)
}

func (uc *FlightLookupUseCase) pipeline(ctx context.Context, load imageLoader, opLogger *zap.Logger) Outcome {
	data, err := load(ctx)
	if err != nil {
		return failed(err)
	}

	md, ok := uc.extract(data)
	if !ok {
		return failed(ErrNoMetadata)
	}
	if md.Location == nil {
		return failed(ErrNoLocation)
	}

	at := uc.now()
	if md.Timestamp != nil {
		at = *md.Timestamp
	}

	opLogger.Debug("searching flights",
		zap.Float64("latitude", md.Location.Latitude),
		zap.Float64("longitude", md.Location.Longitude),
		zap.Time("at", at),
		zap.Bool("timestamp_defaulted", md.Timestamp == nil),
	)

	flights, err := uc.client.SearchFlights(ctx, *md.Location, at)
	if err != nil {
		if ctx.Err() == nil {
			opLogger.Warn("flight lookup failed", zap.Error(err))
		}
		return failed(err)
	}
	if len(flights) == 0 {
		return Outcome{Kind: OutcomeEmpty, Message: EmptyResultMessage}
	}

	best := flights[0]
	opLogger.Info("flight found", zap.String("flight_id", best.ID), zap.Int("candidates", len(flights)))
	return Outcome{Kind: OutcomeSuccess, Flight: &best}
}

// loadPhoto resolves a handle. Every resolution failure is reported to the
// user as ErrFailedToLoadImage; the cause is only logged.
func (uc *FlightLookupUseCase) loadPhoto(ctx context.Context, sessionID, handle string) ([]byte, error) {
	if uc.resolver == nil || handle == "" {
		return nil, ErrFailedToLoadImage
	}
	data, err := uc.resolver.Resolve(ctx, handle)
	if err != nil {
		if !errors.Is(err, photos.ErrNotFound) {
			logging.WithOperation(uc.logger, "usecase.resolve_photo", sessionID).
				Error("failed to resolve photo", zap.String("handle", handle), zap.Error(err))
		}
		return nil, ErrFailedToLoadImage
	}
	if len(data) == 0 {
		return nil, ErrFailedToLoadImage
	}
	return data, nil
}

// setLocked replaces the session state and queues it for observers. Callers
// hold s.mu, which keeps the queue in state order; delivery happens on the
// session's dispatcher so callers never wait on observer I/O.
func (uc *FlightLookupUseCase) setLocked(sessionID string, s *session, next State) {
	next.UpdatedAt = uc.now().UTC()
	s.state = next

	if len(uc.observers) == 0 {
		return
	}
	s.dispatch.enqueue(next, func(st State) {
		uc.publish(sessionID, st)
	})
}

func (uc *FlightLookupUseCase) publish(sessionID string, st State) {
	ctx, cancel := context.WithTimeout(context.Background(), uc.publishTimeout)
	defer cancel()
	for _, o := range uc.observers {
		if err := o.Publish(ctx, sessionID, st); err != nil {
			logging.WithSession(uc.logger, sessionID, st.Generation).
				Warn("failed to publish state", zap.Error(err))
		}
	}
}

// Drain waits until every queued state of every session has been delivered
// to observers. Requests started afterwards are not waited for.
func (uc *FlightLookupUseCase) Drain() {
	uc.mu.Lock()
	sessions := make([]*session, 0, len(uc.sessions))
	for _, s := range uc.sessions {
		sessions = append(sessions, s)
	}
	uc.mu.Unlock()

	for _, s := range sessions {
		s.dispatch.flush()
	}
}
