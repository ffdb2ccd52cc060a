package syncengine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/gossipdb/pkg/executor"
	"github.com/cuemby/gossipdb/pkg/log"
	"github.com/cuemby/gossipdb/pkg/metrics"
	"github.com/cuemby/gossipdb/pkg/oplog"
	"github.com/cuemby/gossipdb/pkg/resilience"
	"github.com/cuemby/gossipdb/pkg/storage"
)

// reconcilePoolSize bounds how many (peer, db) reconciliations run at
// once: each one blocks on network I/O and local disk writes, neither of
// which should serialize behind the others.
const reconcilePoolSize = 8

const (
	antiEntropyInterval = 30 * time.Second
	antiEntropyWindow   = 200 // most recent ops per db carried in a digest
	antiEntropyFanout   = 3   // peers sampled per round
	antiEntropyMaxPeers = 100
)

// DBSource supplies the database names currently known to the local
// store, so anti-entropy knows which digests to build and exchange.
type DBSource interface {
	ListDBs() ([]string, error)
}

// AntiEntropy periodically reconciles local history against a random
// sample of peers: each side exchanges a digest of its recent op_ids for
// a database, and any op missing locally is pulled and applied.
type AntiEntropy struct {
	backing *storage.Store
	log     *oplog.Log
	client  PeerClient
	peers   PeerSource
	dbs     DBSource
	gate    *resilience.Gate
	logger  zerolog.Logger
	rng     *rand.Rand
	pool    *executor.Pool

	interval time.Duration
}

// NewAntiEntropy constructs an AntiEntropy round runner.
func NewAntiEntropy(backing *storage.Store, l *oplog.Log, client PeerClient, peers PeerSource, dbs DBSource, gate *resilience.Gate) *AntiEntropy {
	return &AntiEntropy{
		backing:  backing,
		log:      l,
		client:   client,
		peers:    peers,
		dbs:      dbs,
		gate:     gate,
		logger:   log.WithComponent("syncengine"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		pool:     executor.New(reconcilePoolSize),
		interval: antiEntropyInterval,
	}
}

// Run blocks, running anti-entropy rounds on a fixed interval until ctx
// is cancelled.
func (a *AntiEntropy) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.round(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *AntiEntropy) round(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncRoundDuration)

	roundID := uuid.New().String()
	targets := a.samplePeers()
	dbs, err := a.dbs.ListDBs()
	if err != nil {
		a.logger.Error().Err(err).Str("round_id", roundID).Msg("anti-entropy: list dbs")
		metrics.AntiEntropyRoundsTotal.WithLabelValues("failed").Inc()
		return
	}

	type job struct {
		peerID string
		db     string
	}
	var jobs []job
	for _, peerID := range targets {
		if !a.gate.ShouldCommunicate(peerID) {
			continue
		}
		for _, db := range dbs {
			jobs = append(jobs, job{peerID: peerID, db: db})
		}
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		outcome = "completed"
	)
	for _, j := range jobs {
		j := j
		wg.Add(1)
		go func() {
			defer wg.Done()
			reconcileErr, _ := executor.Do(ctx, a.pool, func() (error, error) {
				return a.reconcileWith(ctx, j.peerID, j.db), nil
			})

			mu.Lock()
			defer mu.Unlock()
			if reconcileErr != nil {
				a.logger.Warn().Err(reconcileErr).Str("round_id", roundID).Str("peer_id", j.peerID).Str("db", j.db).Msg("anti-entropy: reconcile failed")
				a.gate.Breaker.RecordFailure(j.peerID)
				a.gate.Reputation.RecordSyncFailure(j.peerID)
				outcome = "failed"
				return
			}
			a.gate.Breaker.RecordSuccess(j.peerID)
			a.gate.Reputation.RecordSyncSuccess(j.peerID)
		}()
	}
	wg.Wait()

	a.logger.Debug().Str("round_id", roundID).Str("outcome", outcome).Int("jobs", len(jobs)).Int("dbs", len(dbs)).Msg("anti-entropy: round complete")
	metrics.AntiEntropyRoundsTotal.WithLabelValues(outcome).Inc()
}

func (a *AntiEntropy) reconcileWith(ctx context.Context, peerID, db string) error {
	local := a.localDigest(db)
	remote, err := a.client.FetchDigest(ctx, peerID, db)
	if err != nil {
		return err
	}

	have := make(map[string]bool, len(local.Recent))
	for _, ref := range local.Recent {
		have[ref.OpID] = true
	}

	for _, ref := range remote.Recent {
		if have[ref.OpID] {
			continue
		}
		op, err := a.client.FetchOp(ctx, peerID, ref.OpID)
		if err != nil {
			return err
		}
		if err := a.log.Receive(op); err != nil && err != oplog.ErrDuplicate {
			return err
		}
		metrics.AntiEntropyPulledTotal.Inc()
	}
	return nil
}

// localDigest builds this node's digest for db: the most recent window
// of op_ids plus a count of anything older.
func (a *AntiEntropy) localDigest(db string) Digest {
	return LocalDigest(a.backing, db)
}

// LocalDigest builds the anti-entropy digest backing reports for db: the
// most recent window of op_ids plus a count of anything older. Exported
// so the peer wire server can answer a digest_req without duplicating
// the windowing rule.
func LocalDigest(backing *storage.Store, db string) Digest {
	var all []OpRef
	_ = backing.ScanOpsByDB(db, func(ts int64, opID string) bool {
		all = append(all, OpRef{TimestampMs: ts, OpID: opID})
		return true
	})

	if len(all) <= antiEntropyWindow {
		return Digest{Recent: all}
	}
	start := len(all) - antiEntropyWindow
	return Digest{Recent: all[start:], OlderCount: start}
}

func (a *AntiEntropy) samplePeers() []string {
	ids := a.peers.PeerIDs()
	if len(ids) > antiEntropyMaxPeers {
		ids = ids[:antiEntropyMaxPeers]
	}
	if len(ids) <= antiEntropyFanout {
		return ids
	}

	shuffled := make([]string, len(ids))
	copy(shuffled, ids)
	a.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:antiEntropyFanout]
}
