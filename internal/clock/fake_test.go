package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFuncFiresInDeadlineOrder(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "late") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "early") })

	c.Advance(500 * time.Millisecond)
	if len(order) != 0 {
		t.Fatalf("fired too early: %v", order)
	}
	c.Advance(5 * time.Second)
	if len(order) != 2 || order[0] != "early" || order[1] != "late" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestFakeStopPreventsFiring(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop should report a pending timer")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if timer.Stop() {
		t.Fatal("second Stop should report false")
	}
}

func TestFakeCallbackCanRearm(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	count := 0
	var arm func()
	arm = func() {
		c.AfterFunc(time.Second, func() {
			count++
			if count < 3 {
				arm()
			}
		})
	}
	arm()
	c.Advance(10 * time.Second)
	if count != 3 {
		t.Fatalf("expected 3 firings, got %d", count)
	}
}

func TestFakeTickerAndAfter(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()
	after := c.After(2 * time.Second)

	c.WaitForTimers(2)
	c.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("expected a tick")
	}
	select {
	case <-after:
		t.Fatal("After fired early")
	default:
	}
	c.Advance(time.Second)
	select {
	case <-after:
	default:
		t.Fatal("expected After to fire")
	}
	if got := c.PendingCount(); got != 1 {
		t.Fatalf("expected only the ticker pending, got %d", got)
	}
}
