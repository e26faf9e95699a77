package tube

import "context"

// Select is a one-to-one operator that forwards only the upstream items
// matching a predicate (§4.4). If p panics, the upstream is cancelled and
// the panic is delivered downstream as a UserCallback error. Discarded
// items are simply not forwarded — Select never re-requests upstream
// demand on discard; a downstream that requires a strict delivery count
// must arrange additional upstream demand itself.
type Select[T any] struct {
	upstream Publisher[T]
	p        func(T) bool
}

var _ Publisher[int] = (*Select[int])(nil)

// NewSelect builds a Publisher[T] that forwards only the items of upstream
// for which p returns true. Both arguments must be non-nil; violating that
// is an IllegalArgument error raised synchronously to the caller.
func NewSelect[T any](upstream Publisher[T], p func(T) bool) Publisher[T] {
	if isNilValue(upstream) {
		panic(NewIllegalArgumentError("Select: upstream publisher must not be nil"))
	}

	if p == nil {
		panic(NewIllegalArgumentError("Select: p must not be nil"))
	}

	return &Select[T]{upstream: upstream, p: p}
}

func (s *Select[T]) Subscribe(subscriber Subscriber[T]) {
	s.SubscribeWithContext(context.Background(), subscriber)
}

func (s *Select[T]) SubscribeWithContext(ctx context.Context, subscriber Subscriber[T]) {
	if isNilValue(subscriber) {
		panic(NewIllegalArgumentError("Select: subscriber must not be nil"))
	}

	op := &selectSubscriber[T]{
		operatorBase: &operatorBase[T, T]{downstream: subscriber},
		p:            s.p,
	}

	s.upstream.SubscribeWithContext(ctx, op)
}

type selectSubscriber[T any] struct {
	*operatorBase[T, T]
	p func(T) bool
}

func (s *selectSubscriber[T]) OnNext(item T) {
	s.OnNextWithContext(context.Background(), item)
}

func (s *selectSubscriber[T]) OnNextWithContext(ctx context.Context, item T) {
	if s.cancelled() {
		return
	}

	keep, err := capturePanicValue(func() bool { return s.p(item) })
	if err != nil {
		// Cancel upstream directly: cancel() would mark the operator closed,
		// and forwardError would then drop err instead of delivering it.
		s.upstream.CancelWithContext(ctx)
		s.forwardError(ctx, err)

		return
	}

	if keep {
		s.downstream.OnNextWithContext(ctx, item)
	}
}
