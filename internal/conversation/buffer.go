package conversation

import (
	"strings"
	"sync"
	"time"
)

// Buffer coalesces rapid message fragments per user into one logical turn.
// Fragments arriving within the window join the current accumulation; a gap
// longer than the window starts a fresh one. This is a heuristic debounce:
// the caller may act on a turn before all fragments arrive, and the joined
// accumulation simply grows on the next call.
//
// Entries are process-local soft state, rebuilt from the durable interaction
// history if lost; the map is pruned of stale entries on every submit so it
// stays bounded by the set of recently active users.
type Buffer struct {
	window   time.Duration
	maxParts int
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*accumulation
}

type accumulation struct {
	parts []string
	last  time.Time
}

func NewBuffer(window time.Duration, maxParts int) *Buffer {
	if window <= 0 {
		window = 10 * time.Second
	}
	if maxParts <= 0 {
		maxParts = 3
	}
	return &Buffer{
		window:   window,
		maxParts: maxParts,
		now:      time.Now,
		entries:  make(map[string]*accumulation),
	}
}

// Submit appends one fragment to the user's accumulation and returns the
// joined turn so far. complete is true when the fragment cap was reached, in
// which case the accumulation is cleared and the next fragment starts fresh.
func (b *Buffer) Submit(key, text string) (joined string, complete bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.pruneLocked(now)

	cur, ok := b.entries[key]
	if !ok || now.Sub(cur.last) > b.window {
		cur = &accumulation{}
		b.entries[key] = cur
	}
	cur.parts = append(cur.parts, text)
	cur.last = now

	joined = strings.Join(cur.parts, "\n")
	if len(cur.parts) >= b.maxParts {
		delete(b.entries, key)
		return joined, true
	}
	return joined, false
}

// Evict drops any buffered fragments for the key.
func (b *Buffer) Evict(key string) {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
}

// Pending reports how many fragments are accumulated for the key.
func (b *Buffer) Pending(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.entries[key]; ok {
		return len(cur.parts)
	}
	return 0
}

func (b *Buffer) pruneLocked(now time.Time) {
	for key, cur := range b.entries {
		if now.Sub(cur.last) > b.window {
			delete(b.entries, key)
		}
	}
}
