package resilience

// Gate composes the circuit breaker, reputation table, and bandwidth
// governor into the single should_communicate(peer) check the sync engine
// consults before talking to a peer.
type Gate struct {
	Breaker    *CircuitBreaker
	Reputation *Reputation
	Bandwidth  *Bandwidth
}

// NewGate constructs a Gate with fresh breaker and reputation tables over
// the given bandwidth governor.
func NewGate(bw *Bandwidth) *Gate {
	return &Gate{
		Breaker:    NewCircuitBreaker(),
		Reputation: NewReputation(),
		Bandwidth:  bw,
	}
}

// ShouldCommunicate reports whether peer is currently eligible for an
// outbound call: its breaker is not open, it is not banned, and at least
// one byte of bandwidth is currently available upstream.
func (g *Gate) ShouldCommunicate(peer string) bool {
	return g.Breaker.Allow(peer) && !g.Reputation.Banned(peer) && g.Bandwidth.Available(peer)
}
