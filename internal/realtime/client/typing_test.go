package client

import (
	"testing"
	"time"

	"rentme-realtime/internal/clock"
)

type typingEmit struct {
	conversationID string
	typing         bool
}

func newTestTracker(c *clock.FakeClock) (*TypingTracker, *[]typingEmit, *[]string) {
	var emitted []typingEmit
	var changed []string
	tr := newTypingTracker(c, typingOptions{
		TTL:      5 * time.Second,
		Throttle: 2 * time.Second,
		Silence:  3 * time.Second,
		Sweep:    time.Second,
	}, func(fn func()) { fn() }, func(conv string, typing bool) {
		emitted = append(emitted, typingEmit{conv, typing})
	}, func(conv string) {
		changed = append(changed, conv)
	})
	return tr, &emitted, &changed
}

func TestTypingPresenceExpiresAfterTTL(t *testing.T) {
	c := clock.Fake(epoch)
	tr, _, changed := newTestTracker(c)

	if !tr.Observe("c1", "renter", true) {
		t.Fatal("first typing event should be visible")
	}
	c.Advance(time.Second)
	if tr.Observe("c1", "renter", true) {
		t.Fatal("refresh should not report a change")
	}
	c.Advance(4500 * time.Millisecond)
	if got := tr.Typists("c1"); len(got) != 1 || got[0] != "renter" {
		t.Fatalf("typists = %v", got)
	}
	c.Advance(600 * time.Millisecond)
	if got := tr.Typists("c1"); len(got) != 0 {
		t.Fatalf("typists after ttl = %v", got)
	}
	c.Advance(2 * time.Second)
	if len(*changed) != 1 || (*changed)[0] != "c1" {
		t.Fatalf("sweep changes = %v", *changed)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("sweep should stop once empty, pending = %d", c.PendingCount())
	}
}

func TestTypingSetAndExplicitStop(t *testing.T) {
	c := clock.Fake(epoch)
	tr, _, _ := newTestTracker(c)
	tr.Observe("c1", "a", true)
	tr.Observe("c1", "b", true)
	if got := tr.Typists("c1"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("typists = %v", got)
	}
	if !tr.Observe("c1", "a", false) {
		t.Fatal("stop should report a change")
	}
	if !tr.Clear("c1", "b") || tr.Clear("c1", "b") {
		t.Fatal("clear should report only the first removal")
	}
	if len(tr.Typists("c1")) != 0 {
		t.Fatal("set should be empty")
	}
}

func TestTypingOutboundThrottleAndSilence(t *testing.T) {
	c := clock.Fake(epoch)
	tr, emitted, _ := newTestTracker(c)

	tr.NotifyTyping("c1")
	c.Advance(500 * time.Millisecond)
	tr.NotifyTyping("c1")
	c.Advance(500 * time.Millisecond)
	tr.NotifyTyping("c1")
	if len(*emitted) != 1 || !(*emitted)[0].typing {
		t.Fatalf("emitted = %v", *emitted)
	}

	c.Advance(time.Second)
	tr.NotifyTyping("c1")
	if len(*emitted) != 2 {
		t.Fatalf("throttle window passed, emitted = %v", *emitted)
	}

	c.Advance(3 * time.Second)
	if len(*emitted) != 3 || (*emitted)[2].typing {
		t.Fatalf("silence should emit stop, emitted = %v", *emitted)
	}
	tr.NotifyStopped("c1")
	if len(*emitted) != 3 {
		t.Fatalf("stop without typing must not emit, emitted = %v", *emitted)
	}
}

func TestTypingExplicitStopCancelsSilenceTimer(t *testing.T) {
	c := clock.Fake(epoch)
	tr, emitted, _ := newTestTracker(c)
	tr.NotifyTyping("c1")
	tr.NotifyStopped("c1")
	c.Advance(10 * time.Second)
	if len(*emitted) != 2 || (*emitted)[1].typing {
		t.Fatalf("emitted = %v", *emitted)
	}
}
