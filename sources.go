package tube

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/domray/tube/internal/xsync"
)

// FromItems returns a cold Publisher that replays the given items, in
// order, to every subscriber, followed by completion (§4.5).
func FromItems[T any](items ...T) Publisher[T] {
	snapshot := append([]T(nil), items...)

	return &seqPublisher[T]{
		factory: func() (iter.Seq[T], error) {
			return func(yield func(T) bool) {
				for _, v := range snapshot {
					if !yield(v) {
						return
					}
				}
			}, nil
		},
	}
}

// FromIterable returns a cold Publisher over seq. Unlike FromStream, seq is
// a plain iter.Seq[T]: the same sequence value is iterated fresh for every
// subscription (it is reusable, not single-use).
func FromIterable[T any](seq iter.Seq[T]) Publisher[T] {
	if seq == nil {
		panic(NewIllegalArgumentError("FromIterable: seq must not be nil"))
	}

	return &seqPublisher[T]{factory: func() (iter.Seq[T], error) { return seq, nil }}
}

// FromStream returns a Publisher backed by a single-use traversable. Unlike
// FromIterable, supplier is invoked once per subscription to obtain a fresh
// iter.Seq[T] — re-subscription is only meaningful if supplier can produce
// fresh state each time it is called. A nil traversable or a panicking
// supplier is a protocol error delivered via OnError, never propagated to
// the caller of Subscribe.
func FromStream[T any](supplier func() (iter.Seq[T], error)) Publisher[T] {
	if supplier == nil {
		panic(NewIllegalArgumentError("FromStream: supplier must not be nil"))
	}

	return &seqPublisher[T]{factory: supplier}
}

// FromGenerator returns a Publisher driven by an initial state and a
// function mapping that state to the full sequence of items. stateSupplier
// is invoked once per subscription (cold replay with fresh state) and
// returns an Option[S]. gen receives the unwrapped state: an absent state
// is passed as S's zero value, so gen cannot tell it apart from a present
// zero state. gen's returned iter.Seq[T] may not yield a nil item.
func FromGenerator[S, T any](stateSupplier func() Option[S], gen func(S) iter.Seq[T]) Publisher[T] {
	if stateSupplier == nil {
		panic(NewIllegalArgumentError("FromGenerator: stateSupplier must not be nil"))
	}

	if gen == nil {
		panic(NewIllegalArgumentError("FromGenerator: gen must not be nil"))
	}

	return &seqPublisher[T]{
		factory: func() (iter.Seq[T], error) {
			var stateOpt Option[S]
			if serr := capturePanic(func() { stateOpt = stateSupplier() }); serr != nil {
				return nil, serr
			}

			state, _ := stateOpt.Get()

			var seq iter.Seq[T]
			if gerr := capturePanic(func() { seq = gen(state) }); gerr != nil {
				return nil, gerr
			}

			return seq, nil
		},
	}
}

// Empty returns a Publisher that immediately signals OnComplete after
// OnSubscribe (§4.5).
func Empty[T any]() Publisher[T] {
	return &terminalPublisher[T]{}
}

// FromFailure returns a Publisher that immediately signals OnError(err)
// after OnSubscribe (§4.5). err must not be nil.
func FromFailure[T any](err error) Publisher[T] {
	if isNilValue(err) {
		panic(NewIllegalArgumentError("FromFailure: err must not be nil"))
	}

	return &terminalPublisher[T]{err: err}
}

// terminalPublisher backs Empty and FromFailure: it never delivers an
// OnNext, only the single terminal signal, via a NoopSubscription.
type terminalPublisher[T any] struct {
	err error
}

func (p *terminalPublisher[T]) Subscribe(subscriber Subscriber[T]) {
	p.SubscribeWithContext(context.Background(), subscriber)
}

func (p *terminalPublisher[T]) SubscribeWithContext(ctx context.Context, subscriber Subscriber[T]) {
	if isNilValue(subscriber) {
		panic(NewIllegalArgumentError("tube: subscriber must not be nil"))
	}

	subscriber.OnSubscribeWithContext(ctx, NoopSubscription{})

	if p.err != nil {
		subscriber.OnErrorWithContext(ctx, p.err)
		return
	}

	subscriber.OnCompleteWithContext(ctx)
}

// seqPublisher backs FromItems, FromIterable, FromStream and FromGenerator:
// a fresh iter.Seq[T] (or an error) is obtained from factory on every
// subscription, and drained against demand by sourceSubscription.
type seqPublisher[T any] struct {
	factory func() (iter.Seq[T], error)
}

func (p *seqPublisher[T]) Subscribe(subscriber Subscriber[T]) {
	p.SubscribeWithContext(context.Background(), subscriber)
}

func (p *seqPublisher[T]) SubscribeWithContext(ctx context.Context, subscriber Subscriber[T]) {
	if isNilValue(subscriber) {
		panic(NewIllegalArgumentError("tube: subscriber must not be nil"))
	}

	seq, err := callSeqFactory(p.factory)
	if err != nil {
		subscriber.OnSubscribeWithContext(ctx, NoopSubscription{})
		subscriber.OnErrorWithContext(ctx, err)

		return
	}

	if seq == nil {
		subscriber.OnSubscribeWithContext(ctx, NoopSubscription{})
		subscriber.OnErrorWithContext(ctx, newError(KindProtocolViolation, "stream/generator supplier produced a nil traversable", nil))

		return
	}

	next, stop := iter.Pull(seq)
	sub := &sourceSubscription[T]{downstream: subscriber, pullNext: next, stopFn: stop}
	subscriber.OnSubscribeWithContext(ctx, sub)
}

func callSeqFactory[T any](factory func() (iter.Seq[T], error)) (seq iter.Seq[T], err error) {
	lo.TryCatchWithErrorValue(
		func() error {
			s, e := factory()
			seq, err = s, e

			return nil
		},
		func(e any) {
			err = newError(KindUserCallback, "stream/generator supplier panicked", recoverValueToError(e))
		},
	)

	return seq, err
}

// sourceSubscription is the per-subscription Subscription shared by every
// in-memory source (§4.5): (a) a cursor over the source — here, a pulled
// iter.Seq[T] — (b) an atomic demand counter, (c) a single done flag
// standing in for the spec's "cancelled flag" (it absorbs both upstream
// termination and downstream cancellation, since both must stop the drain
// loop and release the cursor exactly once), and (d) a reentrancy guard
// preventing request -> onNext -> request stack growth.
type sourceSubscription[T any] struct {
	downstream Subscriber[T]
	pullNext   func() (T, bool)
	stopFn     func()

	demand     int64
	done       int32
	pendingErr atomic.Pointer[Error] // Request(n<=0) stashes here for the gate's active drainer to pick up
	gate       xsync.Gate
}

func (s *sourceSubscription[T]) Request(n int64) {
	s.RequestWithContext(context.Background(), n)
}

// RequestWithContext never calls the downstream directly: an illegal n is
// stashed in pendingErr and the gate-serialized drain loop delivers it, the
// same way it delivers everything else, so it can never race a concurrent
// OnNext/OnComplete already in flight through that same loop.
func (s *sourceSubscription[T]) RequestWithContext(ctx context.Context, n int64) {
	if n <= 0 {
		s.pendingErr.Store(NewIllegalArgumentError("tube: request(n) with n <= 0"))
		s.drain(ctx)

		return
	}

	xsync.AddDemand(&s.demand, n)
	s.drain(ctx)
}

func (s *sourceSubscription[T]) Cancel() {
	s.CancelWithContext(context.Background())
}

func (s *sourceSubscription[T]) CancelWithContext(_ context.Context) {
	if atomic.CompareAndSwapInt32(&s.done, 0, 1) && s.stopFn != nil {
		s.stopFn()
	}
}

func (s *sourceSubscription[T]) drain(ctx context.Context) {
	s.gate.Run(func() {
		for atomic.LoadInt32(&s.done) == 0 {
			if err := s.pendingErr.Load(); err != nil {
				s.fail(ctx, err)
				return
			}

			if !xsync.TryTakeDemand(&s.demand) {
				return
			}

			value, ok := s.pullNext()
			if !ok {
				s.complete(ctx)
				return
			}

			if isNilValue(value) {
				s.fail(ctx, newError(KindProtocolViolation, "upstream produced a nil item", nil))
				return
			}

			s.downstream.OnNextWithContext(ctx, value)

			// With demand used up, look one item ahead so an exhausted cursor
			// completes now rather than on the next Request.
			if atomic.LoadInt32(&s.done) == 0 && xsync.PeekDemand(&s.demand) == 0 {
				next, more := s.pullNext()
				if !more {
					s.complete(ctx)
					return
				}

				pull := s.pullNext
				s.pullNext = func() (T, bool) {
					s.pullNext = pull
					return next, true
				}
			}
		}
	})
}

func (s *sourceSubscription[T]) complete(ctx context.Context) {
	if atomic.CompareAndSwapInt32(&s.done, 0, 1) {
		if s.stopFn != nil {
			s.stopFn()
		}

		s.downstream.OnCompleteWithContext(ctx)
	}
}

func (s *sourceSubscription[T]) fail(ctx context.Context, err error) {
	if atomic.CompareAndSwapInt32(&s.done, 0, 1) {
		if s.stopFn != nil {
			s.stopFn()
		}

		s.downstream.OnErrorWithContext(ctx, err)
	}
}
