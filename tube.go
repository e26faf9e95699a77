package tube

import (
	"context"
	"sync"

	"github.com/domray/tube/internal/xerrors"
	"github.com/domray/tube/internal/xsync"
)

// unboundedSanityCeiling is the process-wide sanity ceiling the spec
// permits an UNBOUNDED Tube to impose: an implementation is allowed to
// still bound the buffer to avoid runaway memory growth from a runaway
// producer, as long as the bound is generous enough to never be mistaken
// for real backpressure.
const unboundedSanityCeiling = 1 << 20

// BackpressureStrategy selects what a Tube does when a producer sends
// faster than the downstream has demanded (§4.7).
type BackpressureStrategy uint8

const (
	// BackpressureBuffer enqueues up to bufferSize unconsumed items;
	// sending past that overflows to an Overflow error.
	BackpressureBuffer BackpressureStrategy = iota
	// BackpressureDrop silently discards items sent while there is no
	// room for them.
	BackpressureDrop
	// BackpressureLatest keeps a sliding window of the last bufferSize
	// items, evicting the oldest on overflow.
	BackpressureLatest
	// BackpressureError overflows to an Overflow error as soon as a
	// single item cannot be delivered immediately (no buffering at all).
	BackpressureError
	// BackpressureUnbounded enqueues without a configured limit, subject
	// only to unboundedSanityCeiling.
	BackpressureUnbounded
	// BackpressureIgnore delivers OnNext immediately regardless of
	// outstanding demand. This intentionally violates Reactive Streams
	// rule 2.7 (onNext MUST NOT be signaled more often than demanded) —
	// it exists for sinks known to always keep up, and is not gated
	// behind a separate "strict mode" build: the violation is
	// documented here instead (spec.md §9's open question).
	BackpressureIgnore
)

func (s BackpressureStrategy) String() string {
	switch s {
	case BackpressureBuffer:
		return "Buffer"
	case BackpressureDrop:
		return "Drop"
	case BackpressureLatest:
		return "Latest"
	case BackpressureError:
		return "Error"
	case BackpressureUnbounded:
		return "Unbounded"
	case BackpressureIgnore:
		return "Ignore"
	}

	panic("tube: unknown backpressure strategy")
}

// TubeConfiguration is the value object recognized by Create (§3):
// BackpressureStrategy selects the overflow policy, and BufferSize is the
// required-strictly-positive capacity for BUFFER/LATEST (ignored by every
// other strategy).
type TubeConfiguration struct {
	BackpressureStrategy BackpressureStrategy
	BufferSize           int
}

// TubeOption configures a TubeConfiguration built via NewTubeConfiguration.
type TubeOption func(*TubeConfiguration)

// WithBackpressureStrategy sets the overflow policy.
func WithBackpressureStrategy(strategy BackpressureStrategy) TubeOption {
	return func(c *TubeConfiguration) { c.BackpressureStrategy = strategy }
}

// WithBufferSize sets the BUFFER/LATEST capacity.
func WithBufferSize(n int) TubeOption {
	return func(c *TubeConfiguration) { c.BufferSize = n }
}

// NewTubeConfiguration builds a TubeConfiguration from options, defaulting
// to BackpressureBuffer with no capacity set (callers must supply
// WithBufferSize for BUFFER/LATEST; Create validates this eagerly). A
// plain TubeConfiguration{} struct literal remains equally legal.
func NewTubeConfiguration(opts ...TubeOption) TubeConfiguration {
	cfg := TubeConfiguration{BackpressureStrategy: BackpressureBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

func validateTubeConfiguration(cfg TubeConfiguration) error {
	switch cfg.BackpressureStrategy { //nolint:exhaustive
	case BackpressureBuffer, BackpressureLatest:
		if cfg.BufferSize <= 0 {
			return NewIllegalArgumentError("tube: bufferSize must be strictly positive for the BUFFER/LATEST strategies")
		}
	}

	return nil
}

// Tube is the per-subscription handle user code writes to (§3). After any
// terminal signal or a downstream Cancel, Send, Fail and Complete are
// no-ops.
type Tube[T any] interface {
	Send(value T)
	SendWithContext(ctx context.Context, value T)

	Fail(err error)
	FailWithContext(ctx context.Context, err error)

	Complete()
	CompleteWithContext(ctx context.Context)

	// OnCancel registers a callback invoked exactly once if the
	// downstream cancels. If the subscription was already cancelled
	// when this is called, the callback fires immediately.
	OnCancel(callback func())
	OnCancelWithContext(callback func(ctx context.Context))

	// OnTermination registers a callback invoked exactly once on any
	// terminal outcome, including cancellation. If the subscription
	// already reached a terminal outcome when this is called, the
	// callback fires immediately.
	OnTermination(callback func())
	OnTerminationWithContext(callback func(ctx context.Context))

	// Requested returns a snapshot of the current outstanding demand. It
	// may be stale the instant it returns.
	Requested() int64
}

// Create validates cfg and returns a Publisher that, for every
// subscription, constructs a fresh Tube and invokes consumer with it
// immediately after OnSubscribe — consumer may register callbacks and
// start calling Send synchronously. An invalid cfg (non-positive
// BufferSize for BUFFER/LATEST) or a nil consumer is an IllegalArgument
// error raised synchronously, before any subscriber is invoked.
func Create[T any](cfg TubeConfiguration, consumer func(t Tube[T])) Publisher[T] {
	if consumer == nil {
		panic(NewIllegalArgumentError("Create: consumer must not be nil"))
	}

	if err := validateTubeConfiguration(cfg); err != nil {
		panic(err)
	}

	return &tubePublisher[T]{cfg: cfg, consumer: func(_ context.Context, t Tube[T]) { consumer(t) }}
}

// CreateWithContext is Create's context-aware twin: consumer receives the
// context the eventual Subscribe call was made with.
func CreateWithContext[T any](cfg TubeConfiguration, consumer func(ctx context.Context, t Tube[T])) Publisher[T] {
	if consumer == nil {
		panic(NewIllegalArgumentError("CreateWithContext: consumer must not be nil"))
	}

	if err := validateTubeConfiguration(cfg); err != nil {
		panic(err)
	}

	return &tubePublisher[T]{cfg: cfg, consumer: consumer}
}

type tubePublisher[T any] struct {
	cfg      TubeConfiguration
	consumer func(ctx context.Context, t Tube[T])
}

func (p *tubePublisher[T]) Subscribe(subscriber Subscriber[T]) {
	p.SubscribeWithContext(context.Background(), subscriber)
}

func (p *tubePublisher[T]) SubscribeWithContext(ctx context.Context, subscriber Subscriber[T]) {
	if isNilValue(subscriber) {
		panic(NewIllegalArgumentError("tube: subscriber must not be nil"))
	}

	h := &tubeHandle[T]{
		downstream: subscriber,
		strategy:   p.cfg.BackpressureStrategy,
		bufferSize: p.cfg.BufferSize,
	}

	subscriber.OnSubscribeWithContext(ctx, h)

	if err := capturePanic(func() { p.consumer(ctx, h) }); err != nil {
		h.FailWithContext(ctx, err)
	}
}

// tubeHandle implements both Tube[T] (the producer-facing handle) and
// Subscription (the consumer-facing handle): they describe the same
// per-subscription state from two sides, exactly like the teacher's
// Subscriber[T] being simultaneously an Observer and a Subscription.
//
// Concurrency follows the classic queue-drain algorithm: mu guards the
// short, non-blocking bookkeeping (the buffer slice, terminal state,
// registered callbacks), demand is an atomic counter (internal/xsync), and
// gate (internal/xsync's single atomic work-in-progress
// flag) serializes the actual downstream signal delivery, so OnNext/
// OnError/OnComplete calls are never issued concurrently or out of order
// even though Send/Request/Cancel can race from arbitrary goroutines.
type tubeHandle[T any] struct {
	downstream Subscriber[T]
	strategy   BackpressureStrategy
	bufferSize int

	mu                sync.Mutex
	buffer            []T
	demand            int64
	done              bool // no further producer mutation accepted
	cancelled         bool // downstream cancelled (drain stops without delivering)
	terminalPending   bool
	terminalDelivered bool
	terminalIsComplete bool
	terminalErr       error
	terminationFired  bool
	onCancelCb        func(context.Context)
	onTerminationCb   func(context.Context)

	gate xsync.Gate
}

var _ Tube[int] = (*tubeHandle[int])(nil)
var _ Subscription = (*tubeHandle[int])(nil)

func (h *tubeHandle[T]) capacityLocked() int {
	switch h.strategy { //nolint:exhaustive
	case BackpressureBuffer, BackpressureLatest:
		return h.bufferSize
	case BackpressureUnbounded:
		return unboundedSanityCeiling
	default: // Drop, Error: no buffering at all
		return 0
	}
}

func (h *tubeHandle[T]) Send(value T) {
	h.SendWithContext(context.Background(), value)
}

func (h *tubeHandle[T]) SendWithContext(ctx context.Context, value T) {
	if isNilValue(value) {
		h.terminateWithError(ctx, newError(KindProtocolViolation, "tube: send received a nil item", nil))
		return
	}

	h.mu.Lock()

	if h.done {
		h.mu.Unlock()
		return
	}

	// IGNORE stages the item through the same buffer/gate every other
	// strategy uses — runDrain skips its demand check for this strategy —
	// so delivery still serializes with every other signal on this
	// subscription (spec.md §5's serialization guarantee, I3) even though
	// the demand protocol itself (rule 2.7) is not honored.
	if h.strategy == BackpressureIgnore {
		h.buffer = append(h.buffer, value)
		h.mu.Unlock()
		h.runDrain(ctx)

		return
	}

	switch {
	case len(h.buffer) == 0 && xsync.PeekDemand(&h.demand) > 0:
		h.buffer = append(h.buffer, value)
	case len(h.buffer) < h.capacityLocked():
		h.buffer = append(h.buffer, value)
	case h.strategy == BackpressureLatest:
		h.buffer = append(h.buffer[1:], value)
	case h.strategy == BackpressureDrop:
		h.mu.Unlock()
		return
	default:
		// BUFFER/ERROR at capacity, or UNBOUNDED past its sanity ceiling.
		h.mu.Unlock()
		h.terminateWithError(ctx, newError(KindOverflow, "tube: backpressure capacity exceeded", nil))

		return
	}

	h.mu.Unlock()
	h.runDrain(ctx)
}

func (h *tubeHandle[T]) Fail(err error) {
	h.FailWithContext(context.Background(), err)
}

func (h *tubeHandle[T]) FailWithContext(ctx context.Context, err error) {
	if isNilValue(err) {
		err = newError(KindProtocolViolation, "tube: fail received a nil error", nil)
	}

	h.terminateWithError(ctx, err)
}

// terminateWithError marks the tube done and drops any buffered items —
// fail is immediate and does not drain, unlike complete.
func (h *tubeHandle[T]) terminateWithError(ctx context.Context, err error) {
	h.mu.Lock()

	if h.done {
		h.mu.Unlock()
		return
	}

	h.done = true
	h.terminalPending = true
	h.terminalErr = err
	h.buffer = nil
	h.mu.Unlock()

	h.runDrain(ctx)
}

func (h *tubeHandle[T]) Complete() {
	h.CompleteWithContext(context.Background())
}

func (h *tubeHandle[T]) CompleteWithContext(ctx context.Context) {
	h.mu.Lock()

	if h.done {
		h.mu.Unlock()
		return
	}

	h.done = true
	h.terminalPending = true
	h.terminalIsComplete = true
	h.mu.Unlock()

	h.runDrain(ctx)
}

// runDrain is the single queue-drain entry point: it delivers buffered
// items in FIFO order while demand remains (or unconditionally for
// BackpressureIgnore, which stages through this same buffer but skips the
// demand check), then — once the buffer is empty — delivers a pending
// terminal signal exactly once.
func (h *tubeHandle[T]) runDrain(ctx context.Context) {
	h.gate.Run(func() {
		for {
			h.mu.Lock()

			if h.cancelled {
				h.mu.Unlock()
				return
			}

			if len(h.buffer) > 0 {
				if h.strategy != BackpressureIgnore && !xsync.TryTakeDemand(&h.demand) {
					h.mu.Unlock()
					return
				}

				value := h.buffer[0]
				h.buffer = h.buffer[1:]
				h.mu.Unlock()

				h.downstream.OnNextWithContext(ctx, value)

				continue
			}

			if h.terminalPending && !h.terminalDelivered {
				h.terminalDelivered = true
				isComplete := h.terminalIsComplete
				err := h.terminalErr
				h.mu.Unlock()

				if isComplete {
					h.downstream.OnCompleteWithContext(ctx)
				} else {
					h.downstream.OnErrorWithContext(ctx, err)
				}

				h.fireTermination(ctx, nil)

				return
			}

			h.mu.Unlock()

			return
		}
	})
}

func (h *tubeHandle[T]) Request(n int64) {
	h.RequestWithContext(context.Background(), n)
}

func (h *tubeHandle[T]) RequestWithContext(ctx context.Context, n int64) {
	if n <= 0 {
		h.terminateWithError(ctx, NewIllegalArgumentError("tube: request(n) with n <= 0"))
		h.doCancel(ctx)

		return
	}

	xsync.AddDemand(&h.demand, n)
	h.runDrain(ctx)
}

func (h *tubeHandle[T]) Cancel() {
	h.CancelWithContext(context.Background())
}

func (h *tubeHandle[T]) CancelWithContext(ctx context.Context) {
	h.doCancel(ctx)
}

func (h *tubeHandle[T]) doCancel(ctx context.Context) {
	h.mu.Lock()

	if h.done {
		h.mu.Unlock()
		return
	}

	h.done = true
	h.cancelled = true
	h.buffer = nil
	cb := h.onCancelCb
	h.mu.Unlock()

	var cancelErr error
	if cb != nil {
		cancelErr = capturePanic(func() { cb(ctx) })
	}

	h.fireTermination(ctx, cancelErr)
}

// fireTermination invokes the registered OnTermination callback exactly
// once. priorErr carries a failure from a teardown step that ran just
// before this one (OnCancel, on the cancellation path) so that if both
// callbacks fail, the caller observes one joined error via
// OnUnhandledError instead of two separate calls.
func (h *tubeHandle[T]) fireTermination(ctx context.Context, priorErr error) {
	h.mu.Lock()

	if h.terminationFired {
		h.mu.Unlock()

		if priorErr != nil {
			OnUnhandledError(ctx, priorErr)
		}

		return
	}

	h.terminationFired = true
	cb := h.onTerminationCb
	h.mu.Unlock()

	var terminationErr error
	if cb != nil {
		terminationErr = capturePanic(func() { cb(ctx) })
	}

	if joined := xerrors.Join(priorErr, terminationErr); joined != nil {
		OnUnhandledError(ctx, joined)
	}
}

func (h *tubeHandle[T]) OnCancel(callback func()) {
	h.OnCancelWithContext(func(context.Context) { callback() })
}

func (h *tubeHandle[T]) OnCancelWithContext(callback func(ctx context.Context)) {
	h.mu.Lock()

	if h.cancelled {
		h.mu.Unlock()

		if err := capturePanic(func() { callback(context.Background()) }); err != nil {
			OnUnhandledError(context.Background(), err)
		}

		return
	}

	h.onCancelCb = callback
	h.mu.Unlock()
}

func (h *tubeHandle[T]) OnTermination(callback func()) {
	h.OnTerminationWithContext(func(context.Context) { callback() })
}

func (h *tubeHandle[T]) OnTerminationWithContext(callback func(ctx context.Context)) {
	h.mu.Lock()

	if h.terminationFired {
		h.mu.Unlock()

		if err := capturePanic(func() { callback(context.Background()) }); err != nil {
			OnUnhandledError(context.Background(), err)
		}

		return
	}

	h.onTerminationCb = callback
	h.mu.Unlock()
}

func (h *tubeHandle[T]) Requested() int64 {
	return xsync.PeekDemand(&h.demand)
}
