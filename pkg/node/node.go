package node

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cuemby/gossipdb/pkg/api"
	"github.com/cuemby/gossipdb/pkg/cache"
	"github.com/cuemby/gossipdb/pkg/crypto"
	"github.com/cuemby/gossipdb/pkg/discovery"
	"github.com/cuemby/gossipdb/pkg/events"
	"github.com/cuemby/gossipdb/pkg/log"
	"github.com/cuemby/gossipdb/pkg/oplog"
	"github.com/cuemby/gossipdb/pkg/resilience"
	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/syncengine"
	"github.com/cuemby/gossipdb/pkg/typedstore"
	"github.com/cuemby/gossipdb/pkg/types"
)

// Config configures a single running node.
type Config struct {
	DataDir string
	// BindAddr is the TCP address the peer wire server listens on, e.g.
	// "0.0.0.0:7946".
	BindAddr string
	Region   string
	// BootstrapPeers are known peers to dial on startup, each formatted
	// "node_id@host:port".
	BootstrapPeers []string

	// Bandwidth governs outbound gossip traffic; zero values fall back to
	// defaultGlobalBytesPerSec / defaultPeerBytesPerSec.
	GlobalUpBytesPerSec    float64
	GlobalDownBytesPerSec  float64
	PerPeerUpBytesPerSec   float64
	PerPeerDownBytesPerSec float64
}

const (
	defaultGlobalBytesPerSec = 50 << 20 // 50MB/s
	defaultPeerBytesPerSec   = 5 << 20  // 5MB/s
)

// Node composes every component into one running process: the durable
// store, the signed op log, peer discovery, the sync engine, and the
// peer wire API that exposes it all to local callers and remote peers.
type Node struct {
	cfg Config

	KeyPair *crypto.KeyPair

	backing *storage.Store
	cache   *cache.Cache
	typed   *typedstore.Store
	broker  *events.Broker
	log     *oplog.Log

	gate *resilience.Gate

	table     *discovery.Table
	announcer *discovery.Announcer
	discoSvc  *discovery.Service

	book    *api.AddressBook
	client  *api.Client
	server  *api.Server
	Facade  *api.Facade

	engine *syncengine.Engine

	mu        sync.Mutex
	bootstrap []*discovery.BootstrapMonitor
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New constructs a Node from cfg, generating a fresh Ed25519 identity and
// opening the durable store under cfg.DataDir. It does not yet accept
// connections or start any background loop; call Start for that.
func New(cfg Config) (*Node, error) {
	kp, err := crypto.Generate()
	if err != nil {
		return nil, fmt.Errorf("node: generate identity: %w", err)
	}
	return newWithKeyPair(cfg, kp)
}

func newWithKeyPair(cfg Config, kp *crypto.KeyPair) (*Node, error) {
	if cfg.GlobalUpBytesPerSec == 0 {
		cfg.GlobalUpBytesPerSec = defaultGlobalBytesPerSec
	}
	if cfg.GlobalDownBytesPerSec == 0 {
		cfg.GlobalDownBytesPerSec = defaultGlobalBytesPerSec
	}
	if cfg.PerPeerUpBytesPerSec == 0 {
		cfg.PerPeerUpBytesPerSec = defaultPeerBytesPerSec
	}
	if cfg.PerPeerDownBytesPerSec == 0 {
		cfg.PerPeerDownBytesPerSec = defaultPeerBytesPerSec
	}

	backing, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("node: open store: %w", err)
	}

	c, err := cache.New()
	if err != nil {
		backing.Close()
		return nil, fmt.Errorf("node: new cache: %w", err)
	}
	typed := typedstore.New(backing, c)
	broker := events.NewBroker()

	verifier, err := crypto.NewVerifier(0)
	if err != nil {
		backing.Close()
		return nil, fmt.Errorf("node: new verifier: %w", err)
	}
	oplogger := oplog.New(backing, typed, verifier, broker)

	bw := resilience.NewBandwidth(cfg.GlobalUpBytesPerSec, cfg.GlobalDownBytesPerSec, cfg.PerPeerUpBytesPerSec, cfg.PerPeerDownBytesPerSec)
	gate := resilience.NewGate(bw)

	table := discovery.NewTable()
	book := api.NewAddressBook()
	client := api.NewClient(book, kp.PublicKey)

	peers := &tablePeerSource{table: table}

	broadcastAnnouncement := func(ann *types.PeerAnnouncement) error {
		ctx := context.Background()
		for _, peerID := range peers.PeerIDs() {
			_ = client.AnnounceTo(ctx, peerID, ann)
		}
		return nil
	}
	announcer, err := discovery.NewAnnouncer(kp, verifier, table, cfg.Region, broadcastAnnouncement, nil)
	if err != nil {
		backing.Close()
		return nil, fmt.Errorf("node: new announcer: %w", err)
	}
	discoSvc := discovery.NewService(announcer, table)

	server, err := api.NewServer(cfg.BindAddr, oplogger, announcer, backing)
	if err != nil {
		backing.Close()
		return nil, fmt.Errorf("node: listen %s: %w", cfg.BindAddr, err)
	}

	facade := api.NewFacade(oplogger, typed, backing, broker, client)

	engine := syncengine.New(backing, oplogger, broker, client, peers, backing, gate)

	n := &Node{
		cfg:       cfg,
		KeyPair:   kp,
		backing:   backing,
		cache:     c,
		typed:     typed,
		broker:    broker,
		log:       oplogger,
		gate:      gate,
		table:     table,
		announcer: announcer,
		discoSvc:  discoSvc,
		book:      book,
		client:    client,
		server:    server,
		Facade:    facade,
		engine:    engine,
	}
	return n, nil
}

// NodeID returns this node's public key, which doubles as its identity
// in the peer table, address book, and wire protocol.
func (n *Node) NodeID() string { return n.KeyPair.PublicKey }

// Addr returns the peer wire server's bound listen address.
func (n *Node) Addr() string { return n.server.Addr() }

// AddressBook exposes the node's peer dial-address map, so an operator
// or test harness can register a peer's address directly instead of
// waiting for a discovery announcement to arrive.
func (n *Node) AddressBook() *api.AddressBook { return n.book }

// PeerTable exposes the node's live peer table.
func (n *Node) PeerTable() *discovery.Table { return n.table }

// tablePeerSource adapts discovery.Table to syncengine.PeerSource: the
// sync engine only needs candidate node ids, not the full PeerInfo.
type tablePeerSource struct {
	table *discovery.Table
}

func (p *tablePeerSource) PeerIDs() []string {
	list := p.table.List()
	ids := make([]string, len(list))
	for i, info := range list {
		ids[i] = info.NodeID
	}
	return ids
}

// Start brings the node online: the peer wire server starts accepting
// connections, the event broker starts fanning out, the discovery
// announce/evict loop and bootstrap reconnect monitors start, and the
// sync engine's broadcaster and anti-entropy loops start. Start returns
// once everything has been launched; the background loops keep running
// until Shutdown is called.
func (n *Node) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.broker.Start()

	dbs, err := n.backing.ListDBs()
	if err != nil {
		cancel()
		return fmt.Errorf("node: list dbs: %w", err)
	}
	for _, db := range dbs {
		if err := n.log.ReplayInOrder(db); err != nil {
			cancel()
			return fmt.Errorf("node: replay %q: %w", db, err)
		}
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		_ = n.server.Serve(runCtx)
	}()

	n.engine.Start(runCtx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.discoSvc.Run(runCtx)
	}()

	for _, spec := range n.cfg.BootstrapPeers {
		nodeID, addr, ok := splitBootstrapPeer(spec)
		if !ok {
			log.WithComponent("node").Warn().Str("peer", spec).Msg("skip malformed bootstrap peer")
			continue
		}
		n.book.Set(nodeID, addr)
		mon := discovery.NewBootstrapMonitor(addr,
			func(string) bool { _, ok := n.table.Get(nodeID); return ok },
			func(ctx context.Context, endpoint string) error { return n.client.DialPeer(ctx, nodeID, endpoint) },
		)
		n.mu.Lock()
		n.bootstrap = append(n.bootstrap, mon)
		n.mu.Unlock()
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			mon.Run(runCtx)
		}()
	}

	return nil
}

// Shutdown stops every background loop, closes the listener, and closes
// the durable store. It blocks until all goroutines have exited.
func (n *Node) Shutdown() error {
	if n.cancel != nil {
		n.cancel()
	}
	n.engine.Stop()
	n.server.Close()
	n.wg.Wait()
	n.broker.Stop()
	return n.backing.Close()
}

func splitBootstrapPeer(spec string) (nodeID, addr string, ok bool) {
	parts := strings.SplitN(spec, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
