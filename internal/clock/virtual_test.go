package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVirtualFiresInDeadlineOrder(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	var order []string

	v.AfterFunc(300*time.Millisecond, func() { order = append(order, "c") })
	v.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })
	v.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })

	v.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, v.Pending())

	v.Advance(50 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, time.Unix(0, 0).Add(300*time.Millisecond), v.Now())
}

func TestVirtualStopPreventsFire(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	fired := false

	timer := v.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	v.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestVirtualNestedSchedulingWithinWindow(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	var at []time.Duration
	start := v.Now()

	v.AfterFunc(100*time.Millisecond, func() {
		at = append(at, v.Now().Sub(start))
		v.AfterFunc(100*time.Millisecond, func() {
			at = append(at, v.Now().Sub(start))
		})
	})

	v.Advance(time.Second)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, at)
}
