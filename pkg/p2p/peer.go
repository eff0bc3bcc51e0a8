package p2p

import (
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// Peer represents a connected remote node.
type Peer struct {
	Conn     net.Conn
	Server   *Server
	Outbound bool // True if we initiated the connection
	wg       sync.WaitGroup
	quit     chan struct{}
}

// NewPeer creates a new peer instance.
func NewPeer(conn net.Conn, server *Server, outbound bool) *Peer {
	return &Peer{
		Conn:     conn,
		Server:   server,
		Outbound: outbound,
		quit:     make(chan struct{}),
	}
}

// Start begins the peer's read/write loops.
func (p *Peer) Start() {
	p.wg.Add(1)
	go p.readLoop()
}

// Stop closes the peer connection.
func (p *Peer) Stop() {
	close(p.quit)
	p.Conn.Close()
	p.wg.Wait()
}

// readLoop continuously reads messages from the connection.
func (p *Peer) readLoop() {
	defer p.wg.Done()
	defer p.Server.RemovePeer(p)

	for {
		select {
		case <-p.quit:
			return
		default:
			msg, err := DecodeMessage(p.Conn)
			if err != nil {
				log.Debug().Err(err).Str("addr", p.Conn.RemoteAddr().String()).Msg("peer read error")
				return
			}
			p.handleMessage(msg)
		}
	}
}

func (p *Peer) handleMessage(msg Message) {
	switch m := msg.(type) {
	case *MsgVersion:
		log.Debug().Str("addr", p.Conn.RemoteAddr().String()).
			Uint32("version", m.Version).Uint64("height", m.BlockHeight).
			Msg("received version")
		// Handle handshake logic here (e.g., sync chain if behind)

	case *MsgBlock:
		log.Debug().Str("hash", m.Block.Hash.Hex()).Msg("received block")
		if err := p.Server.Chain.AddBlock(m.Block); err != nil {
			log.Warn().Err(err).Str("hash", m.Block.Hash.Hex()).Msg("failed to add block")
		} else {
			log.Info().Str("hash", m.Block.Hash.Hex()).Msg("added block from peer, broadcasting")
			p.Server.Broadcast(m) // Gossip
		}

	case *MsgTx:
		log.Debug().Str("id", m.Tx.ID.Hex()).Msg("received tx")
		if p.Server.Mempool != nil {
			if err := p.Server.Mempool.AddTransaction(m.Tx); err != nil {
				log.Debug().Err(err).Str("id", m.Tx.ID.Hex()).Msg("tx rejected by mempool")
			} else {
				p.Server.Broadcast(m)
			}
		}
	}
}

// Send sends a message to the peer.
func (p *Peer) Send(msg Message) error {
	return EncodeMessage(p.Conn, msg)
}
