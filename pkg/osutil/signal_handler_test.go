package osutil

import "testing"

func Test_RegisterInterruptHandler(t *testing.T) {
	mu.Lock()
	interruptHandlers = nil
	mu.Unlock()

	var order []int
	RegisterInterruptHandler(func() { order = append(order, 1) })
	RegisterInterruptHandler(func() { order = append(order, 2) })

	for _, h := range registered() {
		h()
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order expected [1 2], got %v", order)
	}
}
