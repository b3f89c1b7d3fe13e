package terminal

import "testing"

func TestResizeNotifier(t *testing.T) {
	n := NewResizeNotifier()
	var a, b int
	cancelA := n.OnResize(func() { a++ })
	cancelB := n.OnResize(func() { b++ })

	n.Notify()
	cancelA()
	cancelA()
	n.Notify()

	if a != 1 || b != 2 {
		t.Errorf("calls = (%d, %d), want (1, 2)", a, b)
	}
	if n.Listeners() != 1 {
		t.Errorf("Listeners() = %d, want 1", n.Listeners())
	}
	cancelB()
	if n.Listeners() != 0 {
		t.Errorf("Listeners() = %d, want 0", n.Listeners())
	}
}
