package tube

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectEvenNumbers(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	source := FromItems(1, 2, 3, 4)
	sel := NewSelect(source, func(n int) bool { return n%2 == 0 })

	r := newRecorder[int](math.MaxInt64)
	sel.Subscribe(r)

	is.Equal([]int{2, 4}, r.Values())
	is.True(r.Completed())
	is.False(r.Errored())
}

func TestTransformFormatsEachItem(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	source := FromItems(1, 2, 3)
	mapped := NewTransform(source, func(n int) string {
		return fmt.Sprintf("%d:%d", n, n*100)
	})

	r := newRecorder[string](math.MaxInt64)
	mapped.Subscribe(r)

	is.Equal([]string{"1:100", "2:200", "3:300"}, r.Values())
	is.True(r.Completed())
}

func TestTransformPropagatesPanicAsUserCallbackError(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	boom := fmt.Errorf("boom")
	source := FromItems(1, 2, 3)
	mapped := NewTransform(source, func(int) string {
		panic(boom)
	})

	r := newRecorder[string](math.MaxInt64)
	mapped.Subscribe(r)

	is.Empty(r.Values())
	is.True(r.Errored())

	var tubeErr *Error
	is.ErrorAs(r.Err(), &tubeErr)
	is.Equal(KindUserCallback, tubeErr.Kind)
}

func TestTransformNilResultIsProtocolViolationNamingTheItem(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	source := FromItems(1, 2, 3)
	mapped := NewTransform(source, func(int) *int { return nil })

	r := newRecorder[*int](math.MaxInt64)
	mapped.Subscribe(r)

	is.Empty(r.Values())
	is.True(r.Errored())

	var tubeErr *Error
	is.ErrorAs(r.Err(), &tubeErr)
	is.Equal(KindProtocolViolation, tubeErr.Kind)
	is.Contains(tubeErr.Msg, "1")
}

func TestSelectPanicCancelsUpstream(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	boom := fmt.Errorf("boom")
	source := FromItems(1, 2, 3)
	sel := NewSelect(source, func(int) bool {
		panic(boom)
	})

	r := newRecorder[int](math.MaxInt64)
	sel.Subscribe(r)

	is.Empty(r.Values())
	is.True(r.Errored())

	var tubeErr *Error
	is.ErrorAs(r.Err(), &tubeErr)
	is.Equal(KindUserCallback, tubeErr.Kind)
}

func TestOperatorFusionComposesFunctions(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	source := FromItems(1, 2, 3)
	f := func(n int) int { return n + 1 }
	g := func(n int) int { return n * 10 }

	fused := NewTransform[int, int](NewTransform[int, int](source, f), g)

	r := newRecorder[int](math.MaxInt64)
	fused.Subscribe(r)

	is.Equal([]int{20, 30, 40}, r.Values())
	is.True(r.Completed())
}

func TestNewTransformRejectsNilArguments(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	is.Panics(func() {
		NewTransform[int, int](nil, func(n int) int { return n })
	})

	is.Panics(func() {
		NewTransform[int, int](FromItems(1), nil)
	})
}

func TestNewSelectRejectsNilArguments(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	is.Panics(func() {
		NewSelect[int](nil, func(n int) bool { return true })
	})

	is.Panics(func() {
		NewSelect[int](FromItems(1), nil)
	})
}
