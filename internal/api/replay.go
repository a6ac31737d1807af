package api

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

const (
	// replayTTL is how long an accepted envelope signature stays banned.
	// Clients use a fresh nonce per request, so a repeat within the window
	// is a replay, not a retry.
	replayTTL = 2 * time.Minute

	// replayCleanupInterval is the interval between cleanup runs.
	replayCleanupInterval = 15 * time.Second
)

// replayGuard tracks recently seen envelope signatures so a captured
// request cannot be resubmitted. Entries expire after a TTL.
type replayGuard struct {
	seen map[[32]byte]int64 // signature hash -> timestamp (unix nano)
	mu   sync.RWMutex
	ttl  int64
	stop chan struct{}
	wg   sync.WaitGroup
}

// newReplayGuard creates a guard with the default TTL.
func newReplayGuard() *replayGuard {
	g := &replayGuard{
		seen: make(map[[32]byte]int64),
		ttl:  int64(replayTTL),
		stop: make(chan struct{}),
	}

	g.startCleanup()

	return g
}

// check returns true if the signature is new. If new, it is recorded.
func (g *replayGuard) check(sig []byte) bool {
	hash := blake3.Sum256(sig)
	now := time.Now().UnixNano()

	g.mu.RLock()
	ts, exists := g.seen[hash]
	g.mu.RUnlock()

	if exists && now-ts < g.ttl {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring the write lock
	ts, exists = g.seen[hash]
	if exists && now-ts < g.ttl {
		return false
	}

	g.seen[hash] = now

	return true
}

// close stops the cleanup goroutine.
func (g *replayGuard) close() {
	close(g.stop)
	g.wg.Wait()
}

// startCleanup starts the background cleanup goroutine.
func (g *replayGuard) startCleanup() {
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()

		ticker := time.NewTicker(replayCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				g.cleanup()
			case <-g.stop:
				return
			}
		}
	}()
}

// cleanup removes expired entries.
func (g *replayGuard) cleanup() {
	now := time.Now().UnixNano()

	g.mu.Lock()

	for hash, ts := range g.seen {
		if now-ts >= g.ttl {
			delete(g.seen, hash)
		}
	}

	g.mu.Unlock()
}
