package tube

import (
	"context"
	"sync"
	"sync/atomic"
)

// Future is the Go rendition of a single-value CompletionStage (§4.6):
// a function that blocks until exactly one of a value or an error is
// available. The zero value of T is a legal "resolved with null" result
// when T is a nilable kind (pointer, interface, map, slice) — isNilValue
// is used to distinguish that from a genuine value.
type Future[T any] func(ctx context.Context) (T, error)

// FromCompletionStage adapts a Future into a one-shot Publisher. supplier
// is invoked once per subscription to obtain the Future; the Future itself
// is only invoked once Request(n>0) is first called, so a subscriber that
// never requests never starts the wait.
//
// Exactly one of three outcomes follows: the future resolves to a non-nil
// value (OnNext then OnComplete), resolves to a nil value (OnComplete with
// no item), or fails (OnError). Cancelling before resolution prevents any
// further signal but does not cancel the underlying future, which may be
// shared with other callers.
func FromCompletionStage[T any](supplier func() Future[T]) Publisher[T] {
	if supplier == nil {
		panic(NewIllegalArgumentError("FromCompletionStage: supplier must not be nil"))
	}

	return &completionStagePublisher[T]{supplier: supplier}
}

type completionStagePublisher[T any] struct {
	supplier func() Future[T]
}

func (p *completionStagePublisher[T]) Subscribe(subscriber Subscriber[T]) {
	p.SubscribeWithContext(context.Background(), subscriber)
}

func (p *completionStagePublisher[T]) SubscribeWithContext(ctx context.Context, subscriber Subscriber[T]) {
	if isNilValue(subscriber) {
		panic(NewIllegalArgumentError("tube: subscriber must not be nil"))
	}

	future, err := capturePanicValue(p.supplier)
	if err != nil {
		subscriber.OnSubscribeWithContext(ctx, NoopSubscription{})
		subscriber.OnErrorWithContext(ctx, err)

		return
	}

	sub := &futureSubscription[T]{downstream: subscriber, future: future}
	subscriber.OnSubscribeWithContext(ctx, sub)
}

type futureSubscription[T any] struct {
	downstream Subscriber[T]
	future     Future[T]
	started    int32
	done       int32
}

func (s *futureSubscription[T]) Request(n int64) {
	s.RequestWithContext(context.Background(), n)
}

func (s *futureSubscription[T]) RequestWithContext(ctx context.Context, n int64) {
	if n <= 0 {
		s.fail(ctx, NewIllegalArgumentError("tube: request(n) with n <= 0"))
		return
	}

	if atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		go s.run(ctx)
	}
}

func (s *futureSubscription[T]) Cancel() {
	s.CancelWithContext(context.Background())
}

func (s *futureSubscription[T]) CancelWithContext(_ context.Context) {
	atomic.StoreInt32(&s.done, 1)
}

func (s *futureSubscription[T]) run(ctx context.Context) {
	value, err := s.future(ctx)

	if atomic.LoadInt32(&s.done) != 0 {
		return
	}

	if err != nil {
		s.fail(ctx, err)
		return
	}

	if isNilValue(value) {
		s.complete(ctx)
		return
	}

	if atomic.CompareAndSwapInt32(&s.done, 0, 1) {
		s.downstream.OnNextWithContext(ctx, value)
		s.downstream.OnCompleteWithContext(ctx)
	}
}

func (s *futureSubscription[T]) complete(ctx context.Context) {
	if atomic.CompareAndSwapInt32(&s.done, 0, 1) {
		s.downstream.OnCompleteWithContext(ctx)
	}
}

func (s *futureSubscription[T]) fail(ctx context.Context, err error) {
	if atomic.CompareAndSwapInt32(&s.done, 0, 1) {
		s.downstream.OnErrorWithContext(ctx, err)
	}
}

// ToCompletionStage subscribes to publisher, requests exactly one item,
// cancels on the first item received, and resolves to Some(item). If the
// publisher completes without ever delivering an item, it resolves to
// None. If the publisher errors, the returned Future fails. publisher must
// not be nil.
func ToCompletionStage[T any](publisher Publisher[T]) Future[Option[T]] {
	if isNilValue(publisher) {
		panic(NewIllegalArgumentError("ToCompletionStage: publisher must not be nil"))
	}

	return func(ctx context.Context) (Option[T], error) {
		resultCh := make(chan toStageResult[T], 1)
		sub := &toStageSubscriber[T]{resultCh: resultCh}

		publisher.SubscribeWithContext(ctx, sub)

		select {
		case res := <-resultCh:
			return res.opt, res.err
		case <-ctx.Done():
			sub.mu.Lock()
			s := sub.subscription
			sub.mu.Unlock()

			if s != nil {
				s.CancelWithContext(ctx)
			}

			return None[T](), ctx.Err()
		}
	}
}

type toStageResult[T any] struct {
	opt Option[T]
	err error
}

type toStageSubscriber[T any] struct {
	resultCh     chan toStageResult[T]
	once         int32
	mu           sync.Mutex
	subscription Subscription
}

func (s *toStageSubscriber[T]) OnSubscribe(subscription Subscription) {
	s.OnSubscribeWithContext(context.Background(), subscription)
}

func (s *toStageSubscriber[T]) OnSubscribeWithContext(ctx context.Context, subscription Subscription) {
	s.mu.Lock()
	s.subscription = subscription
	s.mu.Unlock()

	subscription.RequestWithContext(ctx, 1)
}

func (s *toStageSubscriber[T]) OnNext(value T) {
	s.OnNextWithContext(context.Background(), value)
}

func (s *toStageSubscriber[T]) OnNextWithContext(ctx context.Context, value T) {
	if atomic.CompareAndSwapInt32(&s.once, 0, 1) {
		s.mu.Lock()
		sub := s.subscription
		s.mu.Unlock()

		if sub != nil {
			sub.CancelWithContext(ctx)
		}

		s.resultCh <- toStageResult[T]{opt: Some(value)}
	}
}

func (s *toStageSubscriber[T]) OnError(err error) {
	s.OnErrorWithContext(context.Background(), err)
}

func (s *toStageSubscriber[T]) OnErrorWithContext(_ context.Context, err error) {
	if atomic.CompareAndSwapInt32(&s.once, 0, 1) {
		s.resultCh <- toStageResult[T]{err: err}
	}
}

func (s *toStageSubscriber[T]) OnComplete() {
	s.OnCompleteWithContext(context.Background())
}

func (s *toStageSubscriber[T]) OnCompleteWithContext(_ context.Context) {
	if atomic.CompareAndSwapInt32(&s.once, 0, 1) {
		s.resultCh <- toStageResult[T]{opt: None[T]()}
	}
}
