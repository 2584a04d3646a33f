package frames

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judging-station/internal/clock"
	"judging-station/internal/scangate"
)

// blockingDecoder holds every decode until release is closed.
type blockingDecoder struct {
	code    string
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   int
	mu      sync.Mutex
}

func newBlockingDecoder(code string) *blockingDecoder {
	return &blockingDecoder{code: code, started: make(chan struct{}), release: make(chan struct{})}
}

func (d *blockingDecoder) Decode(Frame) (string, bool) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	d.once.Do(func() { close(d.started) })
	<-d.release
	return d.code, true
}

type fixedDecoder string

func (d fixedDecoder) Decode(Frame) (string, bool) { return string(d), d != "" }

type panicDecoder struct{}

func (panicDecoder) Decode(Frame) (string, bool) { panic("boom") }

type recorder struct {
	mu    sync.Mutex
	codes []string
}

func (r *recorder) handle(_ context.Context, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.codes...)
}

func TestPipelineDropsFramesWhileBusy(t *testing.T) {
	dec := newBlockingDecoder("WK1")
	rec := &recorder{}
	clk := clock.NewFake(time.Unix(0, 0))
	p := NewPipeline(nil, dec, scangate.New(0, 0), rec.handle, WithClock(clk))
	ctx := context.Background()

	require.True(t, p.Offer(ctx, Frame{Seq: 1}))
	<-dec.started
	assert.True(t, p.busy.Load())

	for i := 2; i <= 5; i++ {
		assert.False(t, p.Offer(ctx, Frame{Seq: uint64(i)}))
	}

	close(dec.release)
	p.wg.Wait()

	assert.False(t, p.busy.Load())
	assert.Equal(t, []string{"WK1"}, rec.got())
	assert.Equal(t, 1, dec.calls)
	st := p.Stats()
	assert.Equal(t, uint64(5), st.Received)
	assert.Equal(t, uint64(4), st.Dropped)
	assert.Equal(t, uint64(1), st.Accepted)
}

func TestPipelineGateRejectsRepeats(t *testing.T) {
	rec := &recorder{}
	clk := clock.NewFake(time.Unix(0, 0))
	p := NewPipeline(nil, fixedDecoder("WK1"), scangate.New(1500*time.Millisecond, 0), rec.handle, WithClock(clk))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p.Offer(ctx, Frame{})
		p.wg.Wait()
		clk.Advance(200 * time.Millisecond)
	}
	clk.Advance(2 * time.Second)
	p.Offer(ctx, Frame{})
	p.wg.Wait()

	assert.Equal(t, []string{"WK1", "WK1"}, rec.got())
	assert.Equal(t, uint64(2), p.Stats().Rejected)
}

func TestPipelineDiscardsResultAfterCancel(t *testing.T) {
	dec := newBlockingDecoder("WK1")
	rec := &recorder{}
	p := NewPipeline(nil, dec, scangate.New(0, 0), rec.handle)
	ctx, cancel := context.WithCancel(context.Background())

	p.Offer(ctx, Frame{})
	<-dec.started
	cancel()
	close(dec.release)
	p.wg.Wait()

	assert.Empty(t, rec.got())
}

func TestPipelineSurvivesDecoderPanic(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline(nil, panicDecoder{}, scangate.New(0, 0), rec.handle)

	p.Offer(context.Background(), Frame{})
	p.wg.Wait()

	assert.False(t, p.busy.Load())
	assert.Empty(t, rec.got())
}

func TestPipelineInject(t *testing.T) {
	rec := &recorder{}
	clk := clock.NewFake(time.Unix(0, 0))
	p := NewPipeline(nil, fixedDecoder(""), scangate.New(time.Second, 0), rec.handle, WithClock(clk))
	ctx := context.Background()

	assert.True(t, p.Inject(ctx, "  E1\r\n"))
	assert.False(t, p.Inject(ctx, "E1"))
	assert.False(t, p.Inject(ctx, "   "))
	assert.Equal(t, []string{"E1"}, rec.got())
}

type chanSource struct {
	ch      chan Frame
	stopped bool
	drops   uint64
}

func (s *chanSource) Start(context.Context) (<-chan Frame, error) { return s.ch, nil }
func (s *chanSource) Stop() error                                 { s.stopped = true; return nil }
func (s *chanSource) Drops() uint64                               { return s.drops }

func TestPipelineRunUntilSourceEnds(t *testing.T) {
	src := &chanSource{ch: make(chan Frame, 1)}
	rec := &recorder{}
	p := NewPipeline(src, fixedDecoder("WK9"), scangate.New(0, 0), rec.handle)

	src.ch <- Frame{Seq: 1}
	close(src.ch)

	require.NoError(t, p.Run(context.Background()))
	assert.True(t, src.stopped)
	assert.Equal(t, []string{"WK9"}, rec.got())
}

func TestPipelineRunWithoutSource(t *testing.T) {
	p := NewPipeline(nil, fixedDecoder(""), scangate.New(0, 0), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.Run(ctx))
}

func TestPipelineStatsIncludeSourceDrops(t *testing.T) {
	src := &chanSource{ch: make(chan Frame), drops: 7}
	p := NewPipeline(src, fixedDecoder(""), scangate.New(0, 0), nil)
	assert.Equal(t, uint64(7), p.Stats().SourceDropped)

	p = NewPipeline(nil, fixedDecoder(""), scangate.New(0, 0), nil)
	assert.Zero(t, p.Stats().SourceDropped)
}
