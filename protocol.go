package tube

import "context"

// Subscriber is the consumer of a Publisher. It receives OnSubscribe
// exactly once, followed by zero or more OnNext, followed by at most one of
// OnComplete or OnError. Implementations must not call back into the
// subscription synchronously from within a signal delivery in a way that
// would re-enter signal delivery itself; Request and Cancel are always
// safe to call from inside a signal callback.
type Subscriber[T any] interface {
	// OnSubscribe is called exactly once, before any other signal, with the
	// Subscription the subscriber uses to pull demand and cancel.
	OnSubscribe(subscription Subscription)
	OnSubscribeWithContext(ctx context.Context, subscription Subscription)

	// OnNext delivers the next item. It is never called with more
	// outstanding items than have been requested, and never after a
	// terminal signal or cancellation.
	OnNext(value T)
	OnNextWithContext(ctx context.Context, value T)

	// OnError delivers a terminal error. Called at most once, never after
	// OnComplete.
	OnError(err error)
	OnErrorWithContext(ctx context.Context, err error)

	// OnComplete delivers a terminal completion signal. Called at most
	// once, never after OnError.
	OnComplete()
	OnCompleteWithContext(ctx context.Context)
}

// Subscription is the per-subscriber handle used to pull demand and cancel.
// Request and Cancel are safe to call concurrently with each other and with
// signal delivery.
type Subscription interface {
	// Request authorizes the delivery of up to n additional items. A
	// non-positive n is a protocol violation: the publisher must signal
	// OnError(IllegalArgument) and cancel instead of delivering anything.
	Request(n int64)
	RequestWithContext(ctx context.Context, n int64)

	// Cancel is idempotent. After it returns, no further OnNext is
	// guaranteed except at most one already in flight.
	Cancel()
	CancelWithContext(ctx context.Context)
}

// Publisher produces a sequence of items to a single subscriber per
// subscription. Each call to Subscribe creates an independent subscription.
type Publisher[T any] interface {
	Subscribe(subscriber Subscriber[T])
	SubscribeWithContext(ctx context.Context, subscriber Subscriber[T])
}

var _ Subscription = NoopSubscription{}

// NoopSubscription ignores Request and Cancel. It is used when a publisher
// must call OnSubscribe before immediately signaling a terminal (e.g. a nil
// stream supplier, or fromFailure/empty), so the subscriber always receives
// a well-formed OnSubscribe before the terminal signal, per the universal
// contract.
type NoopSubscription struct{}

func (NoopSubscription) Request(n int64)                                 {}
func (NoopSubscription) RequestWithContext(_ context.Context, n int64)   {}
func (NoopSubscription) Cancel()                                        {}
func (NoopSubscription) CancelWithContext(_ context.Context)             {}
