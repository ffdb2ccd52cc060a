package syncengine

import (
	"context"
	"sync"

	"github.com/cuemby/gossipdb/pkg/events"
	"github.com/cuemby/gossipdb/pkg/oplog"
	"github.com/cuemby/gossipdb/pkg/resilience"
	"github.com/cuemby/gossipdb/pkg/storage"
)

// Engine composes the broadcast and anti-entropy paths into the node's
// replication subsystem. Callers must have already run
// oplog.Log.ReplayInOrder for every known database before starting an
// Engine, so local state is consistent with durable history before
// either path can observe or gossip it.
type Engine struct {
	broadcaster *Broadcaster
	antiEntropy *AntiEntropy

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Engine over the given op log, peer transport, peer
// source, database source, and resilience gate.
func New(backing *storage.Store, l *oplog.Log, broker *events.Broker, client PeerClient, peers PeerSource, dbs DBSource, gate *resilience.Gate) *Engine {
	return &Engine{
		broadcaster: NewBroadcaster(broker, client, peers, gate),
		antiEntropy: NewAntiEntropy(backing, l, client, peers, dbs, gate),
	}
}

// Start launches the broadcast and anti-entropy loops in the background.
// It returns immediately; call Stop to tear them down.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.broadcaster.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.antiEntropy.Run(ctx)
	}()
}

// Stop cancels both loops and waits for them to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}
