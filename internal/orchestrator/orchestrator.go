package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"rnseaudit/internal/audit"
	"rnseaudit/internal/core"
	"rnseaudit/internal/merkle"
	"rnseaudit/internal/pipeline"
	"rnseaudit/internal/telemetry"
)

// Orchestrator runs requests. It holds no per-run state and is safe for
// concurrent use.
type Orchestrator struct {
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	tracer      trace.Tracer
	sink        io.Writer
	maxParallel int
	delay       func(stream int) time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = telemetry.OrDiscard(l) }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracerProvider sets the span provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracer = telemetry.Tracer(tp) }
}

// WithSink makes every run write its finalized log to w.
func WithSink(w io.Writer) Option {
	return func(o *Orchestrator) { o.sink = w }
}

// WithMaxParallel bounds the number of concurrently generating streams.
// Zero or less means one goroutine per stream.
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) { o.maxParallel = n }
}

// WithStreamDelay injects a delay before each stream starts generating. It
// exists to drive adversarial schedules in tests.
func WithStreamDelay(f func(stream int) time.Duration) Option {
	return func(o *Orchestrator) { o.delay = f }
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger: telemetry.Discard(),
		tracer: telemetry.Tracer(nil),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes req with one goroutine per stream.
//
// When req.BatchSize is set and the Strict policy meets a partial final batch,
// Run returns the complete Result (log, digest and the full batches) together
// with an error matching core.ErrMerkleBatchIncomplete. Every other error
// returns a nil Result: no partial log is ever produced.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	return o.run(ctx, req, true)
}

// RunSerial executes req on the calling goroutine, stream after stream. Its
// output is byte-identical to Run; it exists as the reference for comparison.
func (o *Orchestrator) RunSerial(ctx context.Context, req Request) (*Result, error) {
	return o.run(ctx, req, false)
}

func (o *Orchestrator) run(ctx context.Context, req Request, parallel bool) (res *Result, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	mode := "serial"
	if parallel {
		mode = "parallel"
	}
	ctx, span := telemetry.StartSpan(ctx, o.tracer, "rnse.run",
		attribute.String("mode", mode),
		attribute.Int("streams", req.Streams()),
		attribute.Int("ticks", req.Ticks),
		attribute.Int("batch_size", req.BatchSize),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := req.Validate(); err != nil {
		o.logger.Warn("run rejected", slog.String("error", err.Error()))
		return nil, err
	}

	streams := make([]*pipeline.Stream, req.Streams())
	for i, seed := range req.Seeds {
		s, err := pipeline.New(i, seed, req.Params)
		if err != nil {
			return nil, err
		}
		streams[i] = s
	}

	o.logger.Info("run started",
		slog.String("mode", mode),
		slog.Int("streams", len(streams)),
		slog.Int("ticks", req.Ticks),
	)
	start := time.Now()

	state := newRunState(len(streams))
	buffers := make([][]core.TickRecord, len(streams))
	if parallel {
		err = o.generateParallel(ctx, streams, req.Ticks, state, buffers)
	} else {
		err = o.generateSerial(ctx, streams, req.Ticks, state, buffers)
	}
	if err != nil {
		o.logger.Error("run failed", slog.String("error", err.Error()))
		return nil, err
	}

	res, err = o.merge(ctx, req, buffers)
	if res != nil {
		res.FinalState = state
		o.logger.Info("run finished",
			slog.String("digest", res.Digest),
			slog.Int("records", len(res.Lines)),
			slog.Int("accepted", res.Accepted),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
	return res, err
}

// generateParallel fans streams out over an errgroup. Each goroutine writes
// only its own buffer slot; the state table is guarded by mu.
func (o *Orchestrator) generateParallel(ctx context.Context, streams []*pipeline.Stream, ticks int, state RunState, buffers [][]core.TickRecord) error {
	g, gctx := errgroup.WithContext(ctx)
	if o.maxParallel > 0 {
		g.SetLimit(o.maxParallel)
	}
	var mu sync.Mutex
	for _, s := range streams {
		s := s
		g.Go(func() error {
			recs, err := o.generateOne(gctx, s, ticks, state, &mu)
			if err != nil {
				return err
			}
			buffers[s.Index()] = recs
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) generateSerial(ctx context.Context, streams []*pipeline.Stream, ticks int, state RunState, buffers [][]core.TickRecord) error {
	var mu sync.Mutex
	for _, s := range streams {
		recs, err := o.generateOne(ctx, s, ticks, state, &mu)
		if err != nil {
			return err
		}
		buffers[s.Index()] = recs
	}
	return nil
}

func (o *Orchestrator) generateOne(ctx context.Context, s *pipeline.Stream, ticks int, state RunState, mu *sync.Mutex) ([]core.TickRecord, error) {
	mu.Lock()
	err := state.transition(s.Index(), StreamPending, StreamRunning)
	mu.Unlock()
	if err != nil {
		return nil, err
	}

	if o.delay != nil {
		if d := o.delay(s.Index()); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
		}
	}

	ctx, span := telemetry.StartSpan(ctx, o.tracer, "rnse.stream",
		attribute.Int("stream", s.Index()),
		attribute.String("seed", fmt.Sprintf("%#x", s.Seed())),
	)
	start := time.Now()
	recs, err := s.Run(ctx, ticks)
	telemetry.EndSpan(span, err)
	o.metrics.ObserveStream(time.Since(start).Seconds(), err)

	to := StreamCompleted
	if err != nil {
		to = StreamFailed
	}
	mu.Lock()
	terr := state.transition(s.Index(), StreamRunning, to)
	mu.Unlock()
	if err != nil {
		o.logger.Debug("stream failed", slog.Int("stream", s.Index()), slog.String("error", err.Error()))
		return nil, err
	}
	if terr != nil {
		return nil, terr
	}
	o.logger.Debug("stream completed", slog.Int("stream", s.Index()), slog.Int("records", len(recs)))
	return recs, nil
}

// merge is the single writer. It runs strictly after every stream finished.
func (o *Orchestrator) merge(ctx context.Context, req Request, buffers [][]core.TickRecord) (*Result, error) {
	_, span := telemetry.StartSpan(ctx, o.tracer, "rnse.merge")
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	var opts []audit.Option
	if o.sink != nil {
		opts = append(opts, audit.WithSink(o.sink))
	}
	rec := audit.NewRecorder(opts...)

	res := &Result{Records: buffers}
	for _, buf := range buffers {
		for _, r := range buf {
			if err = rec.Append(r); err != nil {
				return nil, err
			}
			if r.Accepted {
				res.Accepted++
			} else {
				res.Rejected++
			}
		}
	}
	o.metrics.ObserveTicks(res.Accepted, res.Rejected)

	res.Log, err = rec.Finalize()
	if err != nil {
		return nil, err
	}
	res.Lines = rec.Lines()
	res.Digest = audit.Digest(res.Log)

	if req.BatchSize == 0 {
		return res, nil
	}
	com, cerr := merkle.Commit(res.Lines, req.BatchSize, req.Policy)
	for _, b := range com.Batches {
		o.metrics.ObserveBatch(b.Padding > 0)
	}
	if cerr != nil && !errors.Is(cerr, core.ErrMerkleBatchIncomplete) {
		err = cerr
		return nil, err
	}
	res.Commitment = &com
	err = cerr
	return res, err
}
