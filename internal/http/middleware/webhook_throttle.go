package middleware

import (
	"net/http"
	"sync"
	"time"
)

// WebhookThrottle bounds how fast any single WhatsApp sender can hit the
// inbound webhook. The key is the From number, not the client IP: every
// request arrives from the provider's proxies, so an IP-keyed limit would
// throttle all users collectively while one chatty sender starves the rest.
func WebhookThrottle(perSecond float64, burst int) func(http.Handler) http.Handler {
	t := &throttle{
		rate:    perSecond,
		burst:   float64(burst),
		buckets: map[string]*senderBucket{},
		now:     time.Now,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.allow(throttleKey(r)) {
				http.Error(w, "too many messages", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// throttleKey prefers the parsed sender address; payloads without a From
// (malformed posts) fall back to the caller address so they cannot bypass
// the limit. ParseForm caches on the request, so the webhook handler's own
// parse still sees the body.
func throttleKey(r *http.Request) string {
	_ = r.ParseForm()
	if from := r.PostForm.Get("From"); from != "" {
		return from
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

type senderBucket struct {
	tokens float64
	seen   time.Time
}

type throttle struct {
	mu      sync.Mutex
	rate    float64
	burst   float64
	buckets map[string]*senderBucket
	now     func() time.Time
}

const throttleIdle = 10 * time.Minute

// allow refills the sender's bucket by elapsed time and spends one token.
// Stale buckets are pruned inline once the map grows, so no sweeper
// goroutine is needed.
func (t *throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if len(t.buckets) > 4096 {
		t.pruneLocked(now)
	}
	b, ok := t.buckets[key]
	if !ok {
		b = &senderBucket{tokens: t.burst}
		t.buckets[key] = b
	} else {
		b.tokens += now.Sub(b.seen).Seconds() * t.rate
		if b.tokens > t.burst {
			b.tokens = t.burst
		}
	}
	b.seen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (t *throttle) pruneLocked(now time.Time) {
	for k, b := range t.buckets {
		if now.Sub(b.seen) > throttleIdle {
			delete(t.buckets, k)
		}
	}
}
