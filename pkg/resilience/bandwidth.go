package resilience

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Direction is the traffic direction a bandwidth check applies to.
type Direction int

const (
	Up Direction = iota
	Down
)

const burstMultiplier = 10

type peerLimiters struct {
	up   *rate.Limiter
	down *rate.Limiter
}

// Bandwidth is a token-bucket governor with one limiter pair per peer and
// one global pair, per §4.8. AllowN against both the peer and global
// limiter must succeed for bytes to be accepted.
type Bandwidth struct {
	mu         sync.Mutex
	perPeerUp  float64
	perPeerDn  float64
	peers      map[string]*peerLimiters
	globalUp   *rate.Limiter
	globalDown *rate.Limiter
}

// NewBandwidth constructs a Bandwidth governor with the given global and
// per-peer byte/sec rates. Burst is capped at 10x the refill rate.
func NewBandwidth(globalUpBytesPerSec, globalDownBytesPerSec, perPeerUpBytesPerSec, perPeerDownBytesPerSec float64) *Bandwidth {
	return &Bandwidth{
		perPeerUp:  perPeerUpBytesPerSec,
		perPeerDn:  perPeerDownBytesPerSec,
		peers:      make(map[string]*peerLimiters),
		globalUp:   newLimiter(globalUpBytesPerSec),
		globalDown: newLimiter(globalDownBytesPerSec),
	}
}

func newLimiter(bytesPerSec float64) *rate.Limiter {
	burst := int(bytesPerSec * burstMultiplier)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

func (b *Bandwidth) limiterFor(peer string, dir Direction) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	pl, ok := b.peers[peer]
	if !ok {
		pl = &peerLimiters{up: newLimiter(b.perPeerUp), down: newLimiter(b.perPeerDn)}
		b.peers[peer] = pl
	}
	if dir == Up {
		return pl.up
	}
	return pl.down
}

// Acquire reports whether n bytes may be sent/received to/from peer right
// now, consuming tokens from both the per-peer and global limiter for dir.
// A caller that receives false must drop or queue the bytes; it must not
// retry synchronously against the same call.
func (b *Bandwidth) Acquire(peer string, dir Direction, n int) bool {
	peerLimiter := b.limiterFor(peer, dir)
	global := b.globalUp
	if dir == Down {
		global = b.globalDown
	}
	now := time.Now()
	return peerLimiter.AllowN(now, n) && global.AllowN(now, n)
}

// Available reports whether at least one byte of upstream bandwidth is
// currently available for peer, without consuming any tokens. Used by
// should_communicate, which gates eligibility rather than a specific send.
func (b *Bandwidth) Available(peer string) bool {
	return reservationReady(b.limiterFor(peer, Up)) && reservationReady(b.globalUp)
}

// reservationReady peeks at whether lim has a token available right now by
// reserving one and immediately cancelling the reservation, returning its
// tokens to the bucket either way.
func reservationReady(lim *rate.Limiter) bool {
	r := lim.ReserveN(time.Now(), 1)
	defer r.Cancel()
	return r.OK() && r.Delay() == 0
}
