package syncengine

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/cuemby/gossipdb/pkg/events"
	"github.com/cuemby/gossipdb/pkg/log"
	"github.com/cuemby/gossipdb/pkg/metrics"
	"github.com/cuemby/gossipdb/pkg/oplog"
	"github.com/cuemby/gossipdb/pkg/resilience"
	"github.com/cuemby/gossipdb/pkg/types"
)

// Broadcaster subscribes to the op log's broadcast topic and fans each
// locally ingested operation out to every eligible peer.
type Broadcaster struct {
	broker *events.Broker
	client PeerClient
	peers  PeerSource
	gate   *resilience.Gate
	logger zerolog.Logger
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(broker *events.Broker, client PeerClient, peers PeerSource, gate *resilience.Gate) *Broadcaster {
	return &Broadcaster{broker: broker, client: client, peers: peers, gate: gate, logger: log.WithComponent("syncengine")}
}

// Run blocks, broadcasting every operation published on oplog.BroadcastTopic
// until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	sub := b.broker.Subscribe(oplog.BroadcastTopic)
	defer b.broker.Unsubscribe(sub)

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			b.handle(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broadcaster) handle(ctx context.Context, ev *events.Event) {
	var op types.SignedOperation
	if err := json.Unmarshal([]byte(ev.Payload), &op); err != nil {
		b.logger.Error().Err(err).Msg("decode broadcast payload")
		return
	}

	for _, peerID := range b.peers.PeerIDs() {
		if !b.gate.ShouldCommunicate(peerID) {
			continue
		}
		if err := b.client.SendOperation(ctx, peerID, &op); err != nil {
			b.gate.Breaker.RecordFailure(peerID)
			b.gate.Reputation.RecordMessageFailure(peerID)
			metrics.BroadcastsTotal.WithLabelValues("failed").Inc()
			continue
		}
		b.gate.Breaker.RecordSuccess(peerID)
		b.gate.Reputation.RecordMessageSuccess(peerID)
		metrics.BroadcastsTotal.WithLabelValues("sent").Inc()
	}
}
