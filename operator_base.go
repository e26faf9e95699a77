package tube

import (
	"context"
	"sync/atomic"
)

// operatorBase factors out the state machine shared by every one-to-one
// operator (Transform, Select): it forwards Request/Cancel upstream,
// records the upstream Subscription on OnSubscribe, tracks whether the
// subscription has reached a terminal state (error, complete, or
// downstream cancel), and forwards OnError/OnComplete exactly once.
// Subclasses — in Go, embedding structs — only need to implement
// OnNext/OnNextWithContext.
type operatorBase[I, O any] struct {
	downstream Subscriber[O]
	upstream   Subscription
	closed     int32 // 0 active, 1 terminal delivered or cancelled
}

func (b *operatorBase[I, O]) cancelled() bool {
	return atomic.LoadInt32(&b.closed) != 0
}

// cancel marks the operator closed and forwards Cancel upstream exactly
// once, regardless of how many times it is called.
func (b *operatorBase[I, O]) cancel(ctx context.Context) {
	if atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		if b.upstream != nil {
			b.upstream.CancelWithContext(ctx)
		}
	}
}

func (b *operatorBase[I, O]) forwardError(ctx context.Context, err error) {
	if atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		b.downstream.OnErrorWithContext(ctx, err)
		return
	}

	OnDroppedSignal(ctx, DroppedSignal{Kind: SignalError, Err: err})
}

func (b *operatorBase[I, O]) forwardComplete(ctx context.Context) {
	if atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		b.downstream.OnCompleteWithContext(ctx)
		return
	}

	OnDroppedSignal(ctx, DroppedSignal{Kind: SignalComplete})
}

// OnSubscribe and OnSubscribeWithContext record the upstream subscription
// and hand the downstream subscriber a wrapper subscription that forwards
// Request upstream and Cancel to the operator's own cancel().
func (b *operatorBase[I, O]) OnSubscribe(subscription Subscription) {
	b.OnSubscribeWithContext(context.Background(), subscription)
}

func (b *operatorBase[I, O]) OnSubscribeWithContext(ctx context.Context, subscription Subscription) {
	b.upstream = subscription
	b.downstream.OnSubscribeWithContext(ctx, &operatorSubscription[I, O]{base: b})
}

func (b *operatorBase[I, O]) OnError(err error) {
	b.OnErrorWithContext(context.Background(), err)
}

func (b *operatorBase[I, O]) OnErrorWithContext(ctx context.Context, err error) {
	b.forwardError(ctx, err)
}

func (b *operatorBase[I, O]) OnComplete() {
	b.OnCompleteWithContext(context.Background())
}

func (b *operatorBase[I, O]) OnCompleteWithContext(ctx context.Context) {
	b.forwardComplete(ctx)
}

// operatorSubscription is the Subscription handed to the downstream
// subscriber. Request is forwarded to the upstream subscription untouched;
// Cancel goes through the operator's own cancel(), which is idempotent and
// forwards upstream at most once.
type operatorSubscription[I, O any] struct {
	base *operatorBase[I, O]
}

func (s *operatorSubscription[I, O]) Request(n int64) {
	s.RequestWithContext(context.Background(), n)
}

func (s *operatorSubscription[I, O]) RequestWithContext(ctx context.Context, n int64) {
	if s.base.upstream != nil {
		s.base.upstream.RequestWithContext(ctx, n)
	}
}

func (s *operatorSubscription[I, O]) Cancel() {
	s.CancelWithContext(context.Background())
}

func (s *operatorSubscription[I, O]) CancelWithContext(ctx context.Context) {
	s.base.cancel(ctx)
}
