package gossip

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/findag-labs/findag-core/internal/types"
)

// Handler is the set of callbacks a node wires to dispatch decoded gossip
// messages into the core (spec §6: producer/finalizer consume
// BlockAnnounce/RoundProposal/RoundVote from peers; storage serves
// BlockRequest). Implementations should be safe for concurrent use; each
// Session invokes them from its own read loop goroutine.
type Handler interface {
	OnBlockAnnounce(peer *Session, msg BlockAnnounce) error
	OnRoundProposal(peer *Session, msg RoundProposal) error
	OnRoundVote(peer *Session, msg RoundVote) error
	OnBlockRequest(peer *Session, msg BlockRequest) (types.Block, bool, error)
}

// SessionConfig holds per-session policy.
type SessionConfig struct {
	Magic       uint32
	IdleTimeout time.Duration // 0 disables read deadlines
}

// Session is one framed gossip connection to a peer, adapted from the
// teacher's node/p2p_runtime.go PeerSession: a buffered reader/writer pair
// plus a decaying ban score, generalized from Bitcoin-style commands to
// FinDAG's block/round commands.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	cfg    SessionConfig

	mu   sync.Mutex
	ban  BanScore
	addr string
}

// NewSession wraps conn as a gossip Session.
func NewSession(conn net.Conn, cfg SessionConfig) (*Session, error) {
	if conn == nil {
		return nil, errors.New("gossip: nil conn")
	}
	return &Session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		cfg:    cfg,
		addr:   conn.RemoteAddr().String(),
	}, nil
}

// Addr returns the peer's remote address, for logging and metrics.
func (s *Session) Addr() string { return s.addr }

// BanScore returns the session's current decayed misbehavior score.
func (s *Session) BanScore(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ban.Score(now)
}

func (s *Session) send(command string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.IdleTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.IdleTimeout))
	}
	if err := WriteMessage(s.writer, s.cfg.Magic, command, payload); err != nil {
		return err
	}
	return s.writer.Flush()
}

// SendBlockAnnounce relays a produced or re-gossiped Block (spec §4.4).
func (s *Session) SendBlockAnnounce(msg BlockAnnounce) error {
	return s.send(CmdBlockAnnounce, msg.Encode())
}

// SendRoundProposal relays this validator's candidate round (spec §4.5).
func (s *Session) SendRoundProposal(msg RoundProposal) error {
	return s.send(CmdRoundProposal, msg.Encode())
}

// SendRoundVote relays a validator's signature over a round proposal.
func (s *Session) SendRoundVote(msg RoundVote) error {
	return s.send(CmdRoundVote, msg.Encode())
}

// SendBlockRequest asks the peer to serve a persisted block (spec §6).
func (s *Session) SendBlockRequest(msg BlockRequest) error {
	return s.send(CmdBlockRequest, msg.Encode())
}

// SendBlockResponse answers a peer's BlockRequest.
func (s *Session) SendBlockResponse(blk types.Block) error {
	return s.send(CmdBlockResponse, types.EncodeBlock(blk))
}

// SendBlockNotFound answers a peer's BlockRequest for an id this node does
// not have persisted.
func (s *Session) SendBlockNotFound(id types.HashTimer) error {
	return s.send(CmdBlockNotFound, append([]byte(nil), id[:]...))
}

// Run reads and dispatches messages until ctx is canceled or the
// connection errors. A ReadError that pushes the ban score to BanThreshold,
// or that asks for a disconnect, ends Run and is returned; other ReadErrors
// (checksum/command errors) drop the message without returning anything and
// the loop continues.
func (s *Session) Run(ctx context.Context, h Handler) error {
	if h == nil {
		return errors.New("gossip: nil handler")
	}
	done := make(chan struct{})
	defer close(done)
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = s.conn.Close()
			case <-done:
			}
		}()
	}

	for {
		if s.cfg.IdleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		msg, rerr := ReadMessage(s.reader, s.cfg.Magic)
		if rerr != nil {
			if rerr.BanScoreDelta > 0 {
				s.mu.Lock()
				banned := s.ban.Add(time.Now(), rerr.BanScoreDelta) >= BanThreshold
				s.mu.Unlock()
				if banned {
					return fmt.Errorf("gossip: peer %s exceeded ban threshold: %w", s.addr, rerr.Err)
				}
			}
			if rerr.Disconnect {
				return rerr.Err
			}
			continue // soft-drop: malformed but non-fatal message
		}
		if err := s.dispatch(h, msg); err != nil {
			return err
		}
	}
}

func (s *Session) dispatch(h Handler, msg *Message) error {
	switch msg.Command {
	case CmdBlockAnnounce:
		decoded, err := DecodeBlockAnnounce(msg.Payload)
		if err != nil {
			s.mu.Lock()
			s.ban.AddDecodeFailure(time.Now())
			s.mu.Unlock()
			return nil
		}
		return h.OnBlockAnnounce(s, decoded)
	case CmdRoundProposal:
		decoded, err := DecodeRoundProposal(msg.Payload)
		if err != nil {
			s.mu.Lock()
			s.ban.AddDecodeFailure(time.Now())
			s.mu.Unlock()
			return nil
		}
		return h.OnRoundProposal(s, decoded)
	case CmdRoundVote:
		decoded, err := DecodeRoundVote(msg.Payload)
		if err != nil {
			s.mu.Lock()
			s.ban.AddDecodeFailure(time.Now())
			s.mu.Unlock()
			return nil
		}
		return h.OnRoundVote(s, decoded)
	case CmdBlockRequest:
		decoded, err := DecodeBlockRequest(msg.Payload)
		if err != nil {
			s.mu.Lock()
			s.ban.AddDecodeFailure(time.Now())
			s.mu.Unlock()
			return nil
		}
		blk, ok, err := h.OnBlockRequest(s, decoded)
		if err != nil {
			return err
		}
		if !ok {
			return s.SendBlockNotFound(decoded.ID)
		}
		return s.SendBlockResponse(blk)
	default:
		s.mu.Lock()
		s.ban.AddUnknownCommand(time.Now())
		s.mu.Unlock()
		return nil
	}
}
