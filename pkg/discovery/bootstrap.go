package discovery

import (
	"context"
	"time"
)

const (
	bootstrapPollInterval   = 30 * time.Second
	bootstrapReconnectDelay = 5 * time.Second
	bootstrapBackoffStart   = 1 * time.Second
	bootstrapBackoffMax     = 30 * time.Second
	bootstrapMaxAttempts    = 5
)

// BootstrapMonitor watches a single bootstrap peer's connection state and
// reconnects with exponential backoff if it drops, per §4.9.
type BootstrapMonitor struct {
	endpoint    string
	isConnected func(endpoint string) bool
	dial        func(ctx context.Context, endpoint string) error

	reconnectDelay time.Duration
	backoffStart   time.Duration
	backoffMax     time.Duration
	maxAttempts    int
}

// NewBootstrapMonitor constructs a monitor for endpoint. isConnected
// reports current connection state; dial attempts a fresh connection.
func NewBootstrapMonitor(endpoint string, isConnected func(string) bool, dial func(context.Context, string) error) *BootstrapMonitor {
	return &BootstrapMonitor{
		endpoint:       endpoint,
		isConnected:    isConnected,
		dial:           dial,
		reconnectDelay: bootstrapReconnectDelay,
		backoffStart:   bootstrapBackoffStart,
		backoffMax:     bootstrapBackoffMax,
		maxAttempts:    bootstrapMaxAttempts,
	}
}

// Run blocks, polling connection state every bootstrapPollInterval and
// reconnecting on disconnect, until ctx is cancelled.
func (m *BootstrapMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(bootstrapPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if m.isConnected(m.endpoint) {
				continue
			}
			m.reconnectWithBackoff(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *BootstrapMonitor) reconnectWithBackoff(ctx context.Context) {
	select {
	case <-time.After(m.reconnectDelay):
	case <-ctx.Done():
		return
	}

	backoff := m.backoffStart
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		if err := m.dial(ctx, m.endpoint); err == nil {
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > m.backoffMax {
			backoff = m.backoffMax
		}
	}
}
