package interceptor

import (
	"testing"

	"github.com/bugshot/bugshot-go/pkg/host"
	"github.com/stretchr/testify/require"
)

type handler func(string) []string

func TestWrap_callsThroughAndRestores(t *testing.T) {
	var slot host.Slot[handler]
	slot.Set(func(s string) []string { return []string{"original:" + s} })

	var stack Stack
	Wrap[handler](&stack, &slot, func(prev handler, ok bool) handler {
		require.True(t, ok)
		return func(s string) []string {
			return append([]string{"wrapper"}, prev(s)...)
		}
	})
	require.Equal(t, 1, stack.Len())

	fn, ok := slot.Get()
	require.True(t, ok)
	require.Equal(t, []string{"wrapper", "original:x"}, fn("x"))

	stack.Restore()
	require.Equal(t, 0, stack.Len())
	fn, ok = slot.Get()
	require.True(t, ok)
	require.Equal(t, []string{"original:x"}, fn("x"))
}

func TestWrap_emptySlotIsClearedOnRestore(t *testing.T) {
	var slot host.Slot[handler]
	var stack Stack
	Wrap[handler](&stack, &slot, func(prev handler, ok bool) handler {
		require.False(t, ok)
		return func(s string) []string { return []string{"wrapper"} }
	})
	_, ok := slot.Get()
	require.True(t, ok)

	stack.Restore()
	_, ok = slot.Get()
	require.False(t, ok)
}

func TestRestore_reverseOrder(t *testing.T) {
	var slot host.Slot[handler]
	slot.Set(func(string) []string { return []string{"original"} })

	var stack Stack
	for _, name := range []string{"first", "second"} {
		name := name
		Wrap[handler](&stack, &slot, func(prev handler, ok bool) handler {
			return func(s string) []string { return append([]string{name}, prev(s)...) }
		})
	}
	fn, _ := slot.Get()
	require.Equal(t, []string{"second", "first", "original"}, fn(""))

	stack.Restore()
	fn, _ = slot.Get()
	require.Equal(t, []string{"original"}, fn(""))
}

type recordingSlot struct {
	name string
	log  *[]string
	host.Slot[handler]
}

func (s *recordingSlot) Set(fn handler) {
	*s.log = append(*s.log, "set:"+s.name)
	s.Slot.Set(fn)
}

func (s *recordingSlot) Clear() {
	*s.log = append(*s.log, "clear:"+s.name)
	s.Slot.Clear()
}

func TestRestore_acrossSlots(t *testing.T) {
	var log []string
	a := &recordingSlot{name: "a", log: &log}
	b := &recordingSlot{name: "b", log: &log}
	a.Slot.Set(func(string) []string { return nil })

	var stack Stack
	wrap := func(prev handler, ok bool) handler { return func(string) []string { return nil } }
	Wrap[handler](&stack, a, wrap)
	Wrap[handler](&stack, b, wrap)
	log = nil

	stack.Restore()
	require.Equal(t, []string{"clear:b", "set:a"}, log)
}
