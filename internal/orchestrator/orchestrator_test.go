package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"rnseaudit/internal/audit"
	"rnseaudit/internal/core"
	"rnseaudit/internal/merkle"
	"rnseaudit/internal/telemetry"
)

func baseRequest(streams, ticks int) Request {
	return Request{
		Seeds:  core.DeriveSeeds(core.DefaultSeed, streams),
		Ticks:  ticks,
		Params: core.DefaultParams(),
	}
}

func TestRun_ReferenceScenarioIsReproducible(t *testing.T) {
	req := baseRequest(1, 10000)
	o := New()

	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, first.Lines, 10000)
	assert.Equal(t, first.Digest, second.Digest)
	assert.True(t, bytes.Equal(first.Log, second.Log))
	assert.Equal(t, 10000, first.Accepted+first.Rejected)

	// Flip one character inside line 5000.
	tampered := append([]byte(nil), first.Log...)
	offset := 0
	for _, l := range first.Lines[:4999] {
		offset += len(l) + 1
	}
	pos := offset + bytes.Index(first.Lines[4999], []byte(`"x":`)) + 6
	if tampered[pos] == '1' {
		tampered[pos] = '2'
	} else {
		tampered[pos] = '1'
	}

	v, err := o.Verify(context.Background(), req, Claim{Log: tampered})
	require.NoError(t, err)
	assert.False(t, v.Match)
	assert.Equal(t, 5000, v.FirstDifference)
	assert.NotEqual(t, v.Digest, v.ClaimedDigest)

	v, err = o.Verify(context.Background(), req, Claim{Log: first.Log})
	require.NoError(t, err)
	assert.True(t, v.Match)
}

// Pinned outputs of the reference run: seed 0x5EEDBEEFCAFE1234, 10000 ticks,
// default params. Any change here is a profile change.
const (
	referenceFirstLine  = `{"t":0,"seed64":6840333346157761076,"params":{"tau":0.250000000000,"q":4,"alpha":0.100000000000,"window":32,"scale":100.000000000000},"C":0.471968120421,"accepted":true,"x":0.734102541518,"h":0.031250000000,"D":0.234102541518,"w":[0.608323325153,0.297399613597,0.094277061250],"interp":"accretion","noise":0.083269982377}`
	referenceSecondLine = `{"t":1,"seed64":6840333346157761076,"params":{"tau":0.250000000000,"q":4,"alpha":0.100000000000,"window":32,"scale":100.000000000000},"C":0.452098512133,"accepted":true,"x":0.765088530740,"h":0.031250000000,"D":0.030985989222,"w":[0.208269318886,0.008800301879,0.782930379235],"interp":"null","noise":0.035290040908}`
	referenceDigest     = "39e58d79357b641159f3365750e7554c847f60846d0e14775236421f072dbb47"
	referenceAccepted   = 5020
	referenceHead1000   = "35b1f868d11e3bf26370babe50bcc11b4b3df3973e1ab90a7bf4fb1047d2e124"
	referenceRoot0      = "1ac897a64c7bdb8793c145a2c16c19b7561740cf635faa9bac34dc6ea44d4e6f"
)

func TestRun_ReferenceScenarioConformance(t *testing.T) {
	req := baseRequest(1, 10000)
	req.BatchSize = 1000

	res, err := New().Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Lines, 10000)

	assert.Equal(t, referenceFirstLine, string(res.Lines[0]))
	assert.Equal(t, referenceSecondLine, string(res.Lines[1]))
	assert.Equal(t, referenceDigest, res.Digest)
	assert.Equal(t, referenceAccepted, res.Accepted)
	assert.InDelta(t, 0.502, res.AcceptanceRate(), 1e-12)

	require.NotNil(t, res.Commitment)
	require.Len(t, res.Commitment.Batches, 10)
	assert.Equal(t, referenceRoot0, res.Commitment.Batches[0].Root.String())
	assert.Equal(t, referenceHead1000, res.Commitment.Head.String())
}

func TestRun_ScheduleInvariance(t *testing.T) {
	req := baseRequest(4, 1500)
	ref, err := New().RunSerial(context.Background(), req)
	require.NoError(t, err)

	schedules := map[string]func(int) time.Duration{
		"reverse": func(i int) time.Duration { return time.Duration(4-i) * 15 * time.Millisecond },
		"odd-late": func(i int) time.Duration {
			if i%2 == 1 {
				return 20 * time.Millisecond
			}
			return 0
		},
		"none": nil,
	}
	for name, delay := range schedules {
		t.Run(name, func(t *testing.T) {
			res, err := New(WithStreamDelay(delay)).Run(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, ref.Digest, res.Digest)
			assert.Equal(t, 0, audit.FirstDifference(ref.Log, res.Log))
		})
	}

	bounded, err := New(WithMaxParallel(1)).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ref.Digest, bounded.Digest)
}

func TestRun_MergeOrderIsStreamMajor(t *testing.T) {
	req := baseRequest(3, 50)
	res, err := New().Run(context.Background(), req)
	require.NoError(t, err)

	recs, err := audit.ParseLog(bytes.NewReader(res.Log))
	require.NoError(t, err)
	require.Len(t, recs, 150)
	for i, r := range recs {
		assert.Equal(t, i/50, r.Stream)
		assert.Equal(t, uint64(i%50), r.T)
		assert.Equal(t, req.Seeds[i/50], r.Seed)
	}
	for i := range res.FinalState {
		assert.Equal(t, StreamCompleted, res.FinalState[i])
	}
}

func TestRun_ValidatesBeforeGenerating(t *testing.T) {
	var sink bytes.Buffer
	o := New(WithSink(&sink))

	req := baseRequest(3, 100)
	req.Seeds[2] = 0
	res, err := o.Run(context.Background(), req)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrInvalidSeed)
	var te *core.TickError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.Stream)
	assert.Empty(t, sink.Bytes())

	req = baseRequest(1, 100)
	req.Params.Alpha = 2
	_, err = o.Run(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrInvalidParams)

	_, err = o.Run(context.Background(), Request{Ticks: 10, Params: core.DefaultParams()})
	assert.ErrorIs(t, err, core.ErrInvalidParams)
}

func TestRun_RejectsDuplicateSeeds(t *testing.T) {
	var sink bytes.Buffer
	req := Request{Seeds: []uint64{0x1234, 0x9999, 0x1234}, Ticks: 20, Params: core.DefaultParams()}

	res, err := New(WithSink(&sink)).Run(context.Background(), req)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrInvalidSeed)
	assert.Contains(t, err.Error(), "streams 0 and 2")
	var te *core.TickError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.Stream)
	assert.Empty(t, sink.Bytes())
}

func TestRun_CancelledProducesNoLog(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New().Run(ctx, baseRequest(2, 100))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Commitment(t *testing.T) {
	req := baseRequest(2, 64)
	req.BatchSize = 16
	res, err := New().Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Commitment)
	require.Len(t, res.Commitment.Batches, 8)

	again, err := merkle.Commit(res.Lines, 16, merkle.Strict)
	require.NoError(t, err)
	assert.Equal(t, again.Head, res.Commitment.Head)

	head := res.Commitment.Head
	v, err := New().Verify(context.Background(), req, Claim{Log: res.Log, Head: &head, Roots: res.Commitment.Roots()})
	require.NoError(t, err)
	assert.True(t, v.Match)

	wrong := res.Commitment.Roots()
	wrong[3][0] ^= 0x01
	v, err = New().Verify(context.Background(), req, Claim{Log: res.Log, Roots: wrong})
	require.NoError(t, err)
	assert.False(t, v.Match)
	assert.Equal(t, []int{3}, v.RootMismatch)
}

func TestRun_StrictPartialBatch(t *testing.T) {
	req := baseRequest(1, 10)
	req.BatchSize = 4

	res, err := New().Run(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrMerkleBatchIncomplete)
	require.NotNil(t, res)
	assert.Len(t, res.Lines, 10)
	assert.Len(t, res.Commitment.Batches, 2)

	req.Policy = merkle.PadFinal
	res, err = New().Run(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, res.Commitment.Batches, 3)
	assert.Equal(t, 2, res.Commitment.Batches[2].Padding)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRun_SinkFailure(t *testing.T) {
	res, err := New(WithSink(failingWriter{})).Run(context.Background(), baseRequest(1, 10))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrRecorderWriteFailure)
}

func TestRun_Telemetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	req := baseRequest(2, 40)
	req.BatchSize = 10
	res, err := New(WithMetrics(m), WithTracerProvider(tp)).Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, float64(res.Accepted), testutil.ToFloat64(m.TicksTotal.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StreamsTotal.WithLabelValues("success")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues("false")))

	names := map[string]int{}
	for _, s := range rec.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["rnse.run"])
	assert.Equal(t, 2, names["rnse.stream"])
	assert.Equal(t, 1, names["rnse.merge"])
}

func TestReproduce(t *testing.T) {
	ok, res, err := New().Reproduce(context.Background(), baseRequest(3, 200))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, res.Lines, 600)
}

func TestRunState_Transitions(t *testing.T) {
	st := newRunState(2)
	require.NoError(t, st.transition(0, StreamPending, StreamRunning))
	assert.Error(t, st.transition(0, StreamPending, StreamRunning))
	assert.Error(t, st.transition(1, StreamPending, StreamCompleted))
	require.NoError(t, st.transition(0, StreamRunning, StreamFailed))
	assert.True(t, IsTerminal(st[0]))
	assert.Error(t, st.transition(0, StreamFailed, StreamRunning))
	assert.Error(t, st.transition(5, StreamPending, StreamRunning))
}
