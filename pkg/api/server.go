package api

import (
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/gossipdb/pkg/discovery"
	"github.com/cuemby/gossipdb/pkg/log"
	"github.com/cuemby/gossipdb/pkg/oplog"
	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/syncengine"
)

// Server is the inbound half of the peer wire protocol: it accepts TCP
// connections, reads a single envelope off each, dispatches it against
// the op log or the discovery announcer, and, for request/response
// kinds, writes a single envelope back before closing.
type Server struct {
	ln        net.Listener
	log       *oplog.Log
	announcer *discovery.Announcer
	backing   *storage.Store
	logger    zerolog.Logger

	wg sync.WaitGroup
}

// NewServer binds addr and constructs a Server over l, announcer, and
// backing. The caller must call Serve to start accepting connections.
func NewServer(addr string, l *oplog.Log, announcer *discovery.Announcer, backing *storage.Store) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln, log: l, announcer: announcer, backing: backing, logger: log.WithComponent("api")}, nil
}

// Addr returns the server's bound listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed. It blocks and does not return until accept loop exits.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	req, err := readFrame(conn)
	if err != nil {
		s.logger.Debug().Err(err).Msg("read peer frame")
		return
	}

	switch req.Kind {
	case kindOperation:
		if req.Operation == nil {
			return
		}
		if err := s.log.Receive(req.Operation); err != nil && err != oplog.ErrDuplicate {
			s.logger.Warn().Err(err).Str("peer_id", req.FromNodeID).Msg("receive operation")
		}

	case kindAnnouncement:
		if req.Announcement == nil || s.announcer == nil {
			return
		}
		if err := s.announcer.Receive(req.Announcement, req.FromNodeID); err != nil {
			s.logger.Debug().Err(err).Str("peer_id", req.FromNodeID).Msg("receive announcement")
		}

	case kindDigestReq:
		digest := syncengine.LocalDigest(s.backing, req.DBName)
		_ = writeFrame(conn, &envelope{Kind: kindDigestResp, Topic: dataTopic, Digest: &digest})

	case kindFetchReq:
		op, err := s.log.Fetch(req.OpID)
		if err != nil {
			_ = writeFrame(conn, &envelope{Kind: kindFetchResp, Topic: dataTopic, Err: err.Error()})
			return
		}
		_ = writeFrame(conn, &envelope{Kind: kindFetchResp, Topic: dataTopic, Operation: op})

	default:
		s.logger.Debug().Str("kind", string(req.Kind)).Msg("unknown peer message kind")
	}
}
