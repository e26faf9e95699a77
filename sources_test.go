package tube

import (
	"fmt"
	"iter"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromItemsDeliversInOrderThenCompletes(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	r := newRecorder[int](math.MaxInt64)
	FromItems(1, 2, 3).Subscribe(r)

	is.Equal([]int{1, 2, 3}, r.Values())
	is.True(r.Completed())
	is.False(r.Errored())
}

func TestFromItemsIsColdAndReplayable(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	source := FromItems("a", "b")

	first := newRecorder[string](math.MaxInt64)
	source.Subscribe(first)

	second := newRecorder[string](math.MaxInt64)
	source.Subscribe(second)

	is.Equal(first.Values(), second.Values())
}

func TestFromIterableReplaysFreshOnEverySubscription(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	seq := func(yield func(int) bool) {
		for _, v := range []int{10, 20, 30} {
			if !yield(v) {
				return
			}
		}
	}

	source := FromIterable[int](seq)

	r1 := newRecorder[int](math.MaxInt64)
	source.Subscribe(r1)

	r2 := newRecorder[int](math.MaxInt64)
	source.Subscribe(r2)

	is.Equal([]int{10, 20, 30}, r1.Values())
	is.Equal([]int{10, 20, 30}, r2.Values())
}

func TestFromStreamInvokesSupplierOncePerSubscription(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	calls := 0
	supplier := func() (iter.Seq[int], error) {
		calls++
		n := calls

		return func(yield func(int) bool) {
			yield(n)
		}, nil
	}

	source := FromStream(supplier)

	r1 := newRecorder[int](math.MaxInt64)
	source.Subscribe(r1)

	r2 := newRecorder[int](math.MaxInt64)
	source.Subscribe(r2)

	is.Equal([]int{1}, r1.Values())
	is.Equal([]int{2}, r2.Values())
	is.Equal(2, calls)
}

func TestFromStreamSupplierErrorDeliversOnError(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	boom := fmt.Errorf("no stream available")
	source := FromStream(func() (iter.Seq[int], error) { return nil, boom })

	r := newRecorder[int](math.MaxInt64)
	source.Subscribe(r)

	is.Empty(r.Values())
	is.True(r.Errored())
	is.ErrorIs(r.Err(), boom)
}

func TestFromStreamNilTraversableIsProtocolViolation(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	source := FromStream(func() (iter.Seq[int], error) { return nil, nil })

	r := newRecorder[int](math.MaxInt64)
	source.Subscribe(r)

	is.True(r.Errored())

	var tubeErr *Error
	is.ErrorAs(r.Err(), &tubeErr)
	is.Equal(KindProtocolViolation, tubeErr.Kind)
}

func TestFromGeneratorPassesZeroValueForAbsentState(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	withState := FromGenerator(
		func() Option[int] { return Some(5) },
		func(n int) iter.Seq[int] {
			return func(yield func(int) bool) { yield(n * 2) }
		},
	)

	r := newRecorder[int](math.MaxInt64)
	withState.Subscribe(r)
	is.Equal([]int{10}, r.Values())

	noState := FromGenerator(
		func() Option[int] { return None[int]() },
		func(n int) iter.Seq[int] {
			return func(yield func(int) bool) { yield(n) }
		},
	)

	r2 := newRecorder[int](math.MaxInt64)
	noState.Subscribe(r2)
	is.Equal([]int{0}, r2.Values())
}

func TestEmptyCompletesImmediately(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	r := newRecorder[int](math.MaxInt64)
	Empty[int]().Subscribe(r)

	is.Empty(r.Values())
	is.True(r.Completed())
}

func TestFromFailureErrorsImmediately(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	boom := fmt.Errorf("boom")
	r := newRecorder[int](math.MaxInt64)
	FromFailure[int](boom).Subscribe(r)

	is.Empty(r.Values())
	is.True(r.Errored())
	is.ErrorIs(r.Err(), boom)
}

func TestFromFailureRejectsNilError(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	is.Panics(func() {
		FromFailure[int](nil)
	})
}

func TestSourceRequestZeroOrNegativeIsIllegalArgument(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	r := newRecorder[int](0)
	FromItems(1, 2, 3).Subscribe(r)

	sub := r.Subscription()
	is.NotNil(sub)

	sub.Request(0)
	is.Empty(r.Values())
	is.True(r.Errored())

	var tubeErr *Error
	is.ErrorAs(r.Err(), &tubeErr)
	is.Equal(KindIllegalArgument, tubeErr.Kind)
}

func TestSourceRequestNegativeIsIllegalArgument(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	r := newRecorder[int](0)
	FromItems(1, 2, 3).Subscribe(r)

	sub := r.Subscription()
	is.NotNil(sub)

	sub.Request(-1)
	is.Empty(r.Values())
	is.True(r.Errored())
}

func TestFromItemsDeliveredNeverExceedsRequested(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	r := newRecorder[int](0)
	FromItems(1, 2, 3, 4, 5).Subscribe(r)

	sub := r.Subscription()
	sub.Request(2)

	is.Equal([]int{1, 2}, r.Values())
	is.False(r.Completed())

	sub.Request(3)
	is.Equal([]int{1, 2, 3, 4, 5}, r.Values())
	is.True(r.Completed())
}
