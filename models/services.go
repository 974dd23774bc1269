package models

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// --- Stateful Services ---

// RateLimiter hands out a token bucket per key (usually an IP address).
// Idle buckets are pruned in the background until Close is called.
type RateLimiter struct {
	Mu       sync.RWMutex
	Limiters map[string]*rate.Limiter
	LastSeen map[string]time.Time

	every  time.Duration
	burst  int
	expire time.Duration
	done   chan struct{}
	once   sync.Once
}

// ReplyBroker fans out "new reply in thread N" notifications to streaming
// subscribers. Sends never block: a subscriber that has not drained its
// previous notification simply misses the duplicate, and re-queries anyway.
type ReplyBroker struct {
	mu   sync.Mutex
	subs map[int64]map[string]chan int64
}

// Subscription is one listener on one thread.
type Subscription struct {
	ID       string
	ThreadID int64
	C        <-chan int64
	broker   *ReplyBroker
}

// --- Rate Limiter Methods ---

// NewRateLimiter creates and starts a new rate limiter.
func NewRateLimiter(every time.Duration, burst int, prune, expire time.Duration) *RateLimiter {
	rl := &RateLimiter{
		Limiters: make(map[string]*rate.Limiter),
		LastSeen: make(map[string]time.Time),
		every:    every,
		burst:    burst,
		expire:   expire,
		done:     make(chan struct{}),
	}
	go rl.cleanup(prune)
	return rl
}

// GetLimiter retrieves or creates a rate limiter for a given key.
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.Mu.Lock()
	defer rl.Mu.Unlock()
	limiter, exists := rl.Limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(rl.every), rl.burst)
		rl.Limiters[key] = limiter
	}
	rl.LastSeen[key] = time.Now()
	return limiter
}

// Allow is shorthand for GetLimiter(key).Allow().
func (rl *RateLimiter) Allow(key string) bool {
	return rl.GetLimiter(key).Allow()
}

// Close stops the background pruning.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

// cleanup periodically removes old entries from the rate limiter maps.
func (rl *RateLimiter) cleanup(every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.prune(time.Now().Add(-rl.expire))
		}
	}
}

func (rl *RateLimiter) prune(cutoff time.Time) {
	rl.Mu.Lock()
	defer rl.Mu.Unlock()
	for key, lastSeen := range rl.LastSeen {
		if lastSeen.Before(cutoff) {
			delete(rl.Limiters, key)
			delete(rl.LastSeen, key)
		}
	}
}

// --- Reply Broker Methods ---

func NewReplyBroker() *ReplyBroker {
	return &ReplyBroker{subs: make(map[int64]map[string]chan int64)}
}

// Subscribe registers a listener for new replies under threadID.
func (b *ReplyBroker) Subscribe(threadID int64) *Subscription {
	ch := make(chan int64, 1)
	id := uuid.NewString()

	b.mu.Lock()
	if b.subs[threadID] == nil {
		b.subs[threadID] = make(map[string]chan int64)
	}
	b.subs[threadID][id] = ch
	b.mu.Unlock()

	return &Subscription{ID: id, ThreadID: threadID, C: ch, broker: b}
}

// Publish notifies every listener of threadID that postID was created.
func (b *ReplyBroker) Publish(threadID, postID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[threadID] {
		select {
		case ch <- postID:
		default:
		}
	}
}

// Subscribers returns the number of listeners on threadID.
func (b *ReplyBroker) Subscribers(threadID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[threadID])
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[s.ThreadID]; ok {
		delete(subs, s.ID)
		if len(subs) == 0 {
			delete(b.subs, s.ThreadID)
		}
	}
}

// StorageService persists uploaded file bodies. SaveFile returns the public
// path of the stored object; DeleteFile accepts that same path.
type StorageService interface {
	SaveFile(ctx context.Context, filename string, data []byte, contentType string) (string, error)
	DeleteFile(ctx context.Context, path string) error
}
