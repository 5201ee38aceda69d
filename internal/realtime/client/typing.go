package client

import (
	"sort"
	"time"

	"rentme-realtime/internal/clock"
)

// TypingTracker holds who is typing in each conversation and throttles
// this user's own typing announcements. It is driven from the session
// loop; timers re-enter the loop through post.
type TypingTracker struct {
	clock    clock.Clock
	ttl      time.Duration
	throttle time.Duration
	silence  time.Duration
	sweepInt time.Duration

	// post runs fn on the session loop.
	post func(fn func())
	// emit sends a typing event, best effort.
	emit func(conversationID string, typing bool)
	// changed is told which conversations changed during a sweep.
	changed func(conversationID string)

	peers    map[string]map[string]time.Time
	outbound map[string]*outboundTyping
	sweep    *clock.Timer
}

type outboundTyping struct {
	announced bool
	lastSent  time.Time
	timer     *clock.Timer
}

type typingOptions struct {
	TTL      time.Duration
	Throttle time.Duration
	Silence  time.Duration
	Sweep    time.Duration
}

func newTypingTracker(c clock.Clock, opts typingOptions, post func(func()), emit func(string, bool), changed func(string)) *TypingTracker {
	return &TypingTracker{
		clock:    c,
		ttl:      opts.TTL,
		throttle: opts.Throttle,
		silence:  opts.Silence,
		sweepInt: opts.Sweep,
		post:     post,
		emit:     emit,
		changed:  changed,
		peers:    make(map[string]map[string]time.Time),
		outbound: make(map[string]*outboundTyping),
	}
}

// Observe applies an inbound user-typing event. It reports whether the
// visible set changed.
func (t *TypingTracker) Observe(conversationID, userID string, typing bool) bool {
	if !typing {
		return t.Clear(conversationID, userID)
	}
	now := t.clock.Now()
	users := t.peers[conversationID]
	if users == nil {
		users = make(map[string]time.Time)
		t.peers[conversationID] = users
	}
	exp, present := users[userID]
	users[userID] = now.Add(t.ttl)
	t.armSweep()
	return !present || !exp.After(now)
}

// Clear removes userID from the typing set, e.g. when their message lands.
func (t *TypingTracker) Clear(conversationID, userID string) bool {
	users := t.peers[conversationID]
	exp, ok := users[userID]
	if !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.peers, conversationID)
	}
	return exp.After(t.clock.Now())
}

// Typists returns users whose entries have not expired, sorted.
func (t *TypingTracker) Typists(conversationID string) []string {
	now := t.clock.Now()
	var out []string
	for user, exp := range t.peers[conversationID] {
		if exp.After(now) {
			out = append(out, user)
		}
	}
	sort.Strings(out)
	return out
}

// Sweep prunes expired entries and reports the conversations it touched.
func (t *TypingTracker) Sweep() []string {
	now := t.clock.Now()
	var touched []string
	for conv, users := range t.peers {
		before := len(users)
		for user, exp := range users {
			if !exp.After(now) {
				delete(users, user)
			}
		}
		if len(users) != before {
			touched = append(touched, conv)
		}
		if len(users) == 0 {
			delete(t.peers, conv)
		}
	}
	sort.Strings(touched)
	return touched
}

func (t *TypingTracker) armSweep() {
	if t.sweep != nil || t.sweepInt <= 0 {
		return
	}
	t.sweep = t.clock.AfterFunc(t.sweepInt, func() {
		t.post(t.runSweep)
	})
}

func (t *TypingTracker) runSweep() {
	t.sweep = nil
	for _, conv := range t.Sweep() {
		if t.changed != nil {
			t.changed(conv)
		}
	}
	if len(t.peers) > 0 {
		t.armSweep()
	}
}

// NotifyTyping announces own typing at most once per throttle interval and
// re-arms the silence timer that announces the stop.
func (t *TypingTracker) NotifyTyping(conversationID string) {
	out := t.outbound[conversationID]
	if out == nil {
		out = &outboundTyping{}
		t.outbound[conversationID] = out
	}
	now := t.clock.Now()
	if !out.announced || now.Sub(out.lastSent) >= t.throttle {
		t.emit(conversationID, true)
		out.announced = true
		out.lastSent = now
	}
	out.timer.Stop()
	out.timer = t.clock.AfterFunc(t.silence, func() {
		t.post(func() { t.silenced(conversationID, out) })
	})
}

func (t *TypingTracker) silenced(conversationID string, out *outboundTyping) {
	if t.outbound[conversationID] != out {
		return
	}
	t.NotifyStopped(conversationID)
}

// NotifyStopped announces the stop immediately if typing was announced.
func (t *TypingTracker) NotifyStopped(conversationID string) {
	out := t.outbound[conversationID]
	if out == nil {
		return
	}
	out.timer.Stop()
	delete(t.outbound, conversationID)
	if out.announced {
		t.emit(conversationID, false)
	}
}

// Forget drops all state for a closed conversation.
func (t *TypingTracker) Forget(conversationID string) {
	t.NotifyStopped(conversationID)
	delete(t.peers, conversationID)
}

// Stop cancels every timer.
func (t *TypingTracker) Stop() {
	t.sweep.Stop()
	t.sweep = nil
	for _, out := range t.outbound {
		out.timer.Stop()
	}
}
