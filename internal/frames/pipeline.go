package frames

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"judging-station/internal/clock"
	"judging-station/internal/scangate"
	"judging-station/internal/util"
)

// Handler receives each accepted code. It runs inside the busy window, so
// frames keep being dropped until it returns.
type Handler func(ctx context.Context, code string)

type Stats struct {
	Received uint64
	Dropped  uint64 // arrived while a decode was in flight
	Decoded  uint64
	Accepted uint64
	Rejected uint64 // decoded but refused by the gate

	SourceDropped uint64 // never delivered: the source outran Run
}

// dropCounter is implemented by sources that drop frames on their side.
type dropCounter interface {
	Drops() uint64
}

type Pipeline struct {
	src     Source
	dec     Decoder
	gate    *scangate.Gate
	clk     clock.Clock
	handler Handler
	log     *slog.Logger

	busy atomic.Bool
	wg   sync.WaitGroup

	received atomic.Uint64
	dropped  atomic.Uint64
	decoded  atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
}

type PipelineOption func(*Pipeline)

func WithClock(c clock.Clock) PipelineOption {
	return func(p *Pipeline) { p.clk = c }
}

func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

func NewPipeline(src Source, dec Decoder, gate *scangate.Gate, h Handler, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		src:     src,
		dec:     dec,
		gate:    gate,
		clk:     clock.Real{},
		handler: h,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run starts the source and feeds its frames until ctx is done or the
// source closes its channel. In-flight work is waited for before returning;
// results that land after cancellation are discarded.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.src == nil {
		<-ctx.Done()
		return nil
	}
	ch, err := p.src.Start(ctx)
	if err != nil {
		return fmt.Errorf("start frame source: %w", err)
	}
	defer func() {
		if err := p.src.Stop(); err != nil {
			p.log.Warn("frames: stop source", "err", err)
		}
		p.wg.Wait()
	}()

	p.log.Info("frames: pipeline running")
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-ch:
			if !ok {
				p.log.Info("frames: source ended")
				return nil
			}
			p.Offer(ctx, f)
		}
	}
}

// Offer hands a frame to the decoder unless one is already in flight, in
// which case the frame is dropped. It never blocks.
func (p *Pipeline) Offer(ctx context.Context, f Frame) bool {
	p.received.Add(1)
	if !p.busy.CompareAndSwap(false, true) {
		p.dropped.Add(1)
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		p.process(ctx, f)
	}()
	return true
}

// Inject pushes a code that did not come from a frame (keyboard wedge,
// manual entry) through the same busy flag and gate.
func (p *Pipeline) Inject(ctx context.Context, code string) bool {
	if !p.busy.CompareAndSwap(false, true) {
		return false
	}
	defer p.busy.Store(false)
	return p.submit(ctx, code)
}

func (p *Pipeline) process(ctx context.Context, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("frames: decoder panic", "seq", f.Seq, "panic", r)
		}
	}()
	code, ok := p.dec.Decode(f)
	if !ok || ctx.Err() != nil {
		return
	}
	p.decoded.Add(1)
	p.submit(ctx, code)
}

func (p *Pipeline) submit(ctx context.Context, code string) bool {
	code = util.NormalizeCode(code)
	if code == "" {
		return false
	}
	if !p.gate.Submit(code, p.clk.Now()) {
		p.rejected.Add(1)
		return false
	}
	p.accepted.Add(1)
	p.log.Debug("frames: code accepted", "code", code)
	if p.handler != nil {
		p.handler(ctx, code)
	}
	return true
}

func (p *Pipeline) Stats() Stats {
	st := Stats{
		Received: p.received.Load(),
		Dropped:  p.dropped.Load(),
		Decoded:  p.decoded.Load(),
		Accepted: p.accepted.Load(),
		Rejected: p.rejected.Load(),
	}
	if dc, ok := p.src.(dropCounter); ok {
		st.SourceDropped = dc.Drops()
	}
	return st
}
