package tube

import (
	"context"
	"fmt"
)

// Transform is a one-to-one operator that applies a pure function to every
// upstream item (§4.3). If f panics, the upstream is cancelled and the
// panic is delivered downstream as a UserCallback error; if f returns a
// nil result, the upstream is cancelled and a ProtocolViolation error
// naming the offending item is delivered instead.
type Transform[I, O any] struct {
	upstream Publisher[I]
	f        func(I) O
}

var _ Publisher[int] = (*Transform[string, int])(nil)

// NewTransform builds a Publisher[O] that maps every item produced by
// upstream through f. Both arguments must be non-nil; violating that is an
// IllegalArgument error raised synchronously to the caller, not through a
// subscription.
func NewTransform[I, O any](upstream Publisher[I], f func(I) O) Publisher[O] {
	if isNilValue(upstream) {
		panic(NewIllegalArgumentError("Transform: upstream publisher must not be nil"))
	}

	if f == nil {
		panic(NewIllegalArgumentError("Transform: f must not be nil"))
	}

	return &Transform[I, O]{upstream: upstream, f: f}
}

func (t *Transform[I, O]) Subscribe(subscriber Subscriber[O]) {
	t.SubscribeWithContext(context.Background(), subscriber)
}

func (t *Transform[I, O]) SubscribeWithContext(ctx context.Context, subscriber Subscriber[O]) {
	if isNilValue(subscriber) {
		panic(NewIllegalArgumentError("Transform: subscriber must not be nil"))
	}

	op := &transformSubscriber[I, O]{
		operatorBase: &operatorBase[I, O]{downstream: subscriber},
		f:            t.f,
	}

	t.upstream.SubscribeWithContext(ctx, op)
}

type transformSubscriber[I, O any] struct {
	*operatorBase[I, O]
	f func(I) O
}

func (s *transformSubscriber[I, O]) OnNext(item I) {
	s.OnNextWithContext(context.Background(), item)
}

func (s *transformSubscriber[I, O]) OnNextWithContext(ctx context.Context, item I) {
	if s.cancelled() {
		return
	}

	out, err := capturePanicValue(func() O { return s.f(item) })
	if err != nil {
		// Cancel upstream directly: cancel() would mark the operator closed,
		// and forwardError would then drop err instead of delivering it.
		s.upstream.CancelWithContext(ctx)
		s.forwardError(ctx, err)

		return
	}

	if isNilValue(out) {
		s.upstream.CancelWithContext(ctx)
		s.forwardError(ctx, newError(KindProtocolViolation, fmt.Sprintf("Transform produced a nil result for item %v", item), nil))

		return
	}

	s.downstream.OnNextWithContext(ctx, out)
}
