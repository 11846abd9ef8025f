package main

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/lightningnetwork/hosted-channeld/channeldb"
	"github.com/lightningnetwork/hosted-channeld/contractcourt"
	"github.com/lightningnetwork/hosted-channeld/discovery"
	"github.com/lightningnetwork/hosted-channeld/htlcswitch"
	"github.com/lightningnetwork/hosted-channeld/lnwallet"
	"github.com/lightningnetwork/hosted-channeld/lnwire"
)

// blockTickInterval is the polling period the expiry watcher uses in place
// of a real chain-tip subscription (see contractcourt.ExpiryWatcher, and
// DESIGN.md for why this module polls instead of subscribing to a chain
// notifier).
const blockTickInterval = 10 * time.Second

// server is the main daemon server: it houses the channel database, the
// registry of live hostedChannelLinks, the expiry watcher, and the gossip
// responder, and is the central place that wires a new connection into a
// running link.
//
// A hosted-channel client invokes at most one hosted channel per host, so
// unlike the teacher's server, which fans inbound connections out across
// an arbitrary number of peers and channels, this server's peer table is
// small and its listener accepts inbound connections only to answer gossip
// queries, not to originate new hosted channels --
// accepting brand-new invokes is the host-side acceptance workflow, which
// sits outside this module's scope (see DESIGN.md).
type server struct {
	started  int32
	shutdown int32

	identityPriv *btcec.PrivateKey
	chainHash    [32]byte

	db       *channeldb.DB
	registry *htlcswitch.LinkRegistry
	gossiper *discovery.Gossiper
	expiry   *contractcourt.ExpiryWatcher
	signer   lnwallet.ChannelSigner
	checker  contractcourt.PreimageChecker

	currentHeight   func() uint32
	currentBlockDay func() uint32

	listeners []net.Listener

	peersMtx sync.RWMutex
	peers    map[[33]byte]*peer

	wg   sync.WaitGroup
	quit chan struct{}
}

// newServer constructs a server listening on listenAddrs, backed by db, and
// resolving ambiguous outgoing-HTLC timeouts via checker (spec.md §4.4).
// currentHeight supplies the block height the expiry watcher ticks against;
// currentBlockDay supplies the live day-since-epoch counter every link
// signs its LCSS against (spec.md §4.2).
func newServer(listenAddrs []string, identityPriv *btcec.PrivateKey, db *channeldb.DB,
	chainHash [32]byte, checker contractcourt.PreimageChecker,
	currentHeight func() uint32, currentBlockDay func() uint32) (*server, error) {

	listeners := make([]net.Listener, len(listenAddrs))
	for i, addr := range listenAddrs {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("unable to listen on %v: %w", addr, err)
		}
		listeners[i] = l
	}

	s := &server{
		identityPriv:    identityPriv,
		chainHash:       chainHash,
		db:              db,
		registry:        htlcswitch.NewLinkRegistry(),
		gossiper:        discovery.New(db, chainHash),
		signer:          lnwallet.NewPrivKeyChannelSigner(identityPriv),
		checker:         checker,
		currentHeight:   currentHeight,
		currentBlockDay: currentBlockDay,
		listeners:       listeners,
		peers:           make(map[[33]byte]*peer),
		quit:            make(chan struct{}),
	}
	s.expiry = contractcourt.NewExpiryWatcher(checker, ticker.New(blockTickInterval))

	return s, nil
}

// Start launches the server's listeners, restores any previously persisted
// hosted channels into the link registry, and begins the expiry watcher.
func (s *server) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}

	restored, err := s.db.FetchAllHostedChannels()
	if err != nil {
		return fmt.Errorf("unable to restore hosted channels: %w", err)
	}
	for chanID, hc := range restored {
		s.spawnLink(chanID, hc)
	}

	for _, l := range s.listeners {
		s.wg.Add(1)
		go s.listen(l)
	}

	s.expiry.Start(s.currentHeight, s.onBlockTick)

	return nil
}

// Stop signals every listener, peer, and link to shut down, and blocks
// until all of the server's own goroutines have exited.
func (s *server) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.shutdown, 0, 1) {
		return nil
	}

	s.expiry.Stop()

	for _, l := range s.listeners {
		l.Close()
	}

	s.peersMtx.Lock()
	for _, p := range s.peers {
		p.Stop()
	}
	s.peersMtx.Unlock()

	s.registry.StopAll()

	close(s.quit)
	s.wg.Wait()

	return nil
}

// spawnLink constructs and starts a hostedChannelLink for an already-known
// channel, registering it in s.registry under chanID.
func (s *server) spawnLink(chanID lnwire.ChannelID, hc *lnwallet.HostedCommits) {
	link := htlcswitch.NewHostedChannelLink(
		chanID, s.db, s.signer, hc.RemoteInfo.NodeID, noopTransport{}, hc,
		s.checker, s.currentBlockDay,
	)
	link.Start()
	s.registry.AddLink(chanID, link)
}

// onBlockTick runs spec.md §4.4's expiry check against every live link at
// the given height, by posting a BlockTickEvent onto each link's own queue
// rather than mutating state from the watcher's goroutine.
func (s *server) onBlockTick(height uint32) {
	s.registry.PostToAll(htlcswitch.BlockTickEvent{Height: height})
}

// listen accepts inbound connections on l, handing each to a fresh peer.
//
// NOTE: This method MUST be run as a goroutine.
func (s *server) listen(l net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				srvrLog.Errorf("unable to accept connection: %v", err)
				continue
			}
		}

		go s.inboundPeerHandler(conn)
	}
}

// inboundPeerHandler is a placeholder for the host-side new-connection
// handshake: identifying the connecting peer and matching it to a known
// hosted channel is the host-side acceptance workflow, out of scope for
// this module (see DESIGN.md). For now an inbound connection is only kept
// open long enough to answer chain-scoped gossip queries.
func (s *server) inboundPeerHandler(conn net.Conn) {
	defer conn.Close()

	for {
		msg, err := lnwire.ReadMessage(conn, 0)
		if err != nil {
			return
		}

		switch q := msg.(type) {
		case *lnwire.QueryPublicHostedChannels:
			updates, end, err := s.gossiper.HandleQueryPublicHostedChannels(q)
			if err != nil {
				srvrLog.Errorf("gossip query failed: %v", err)
				return
			}
			msgs := make([]lnwire.Message, 0, len(updates)+1)
			for _, u := range updates {
				msgs = append(msgs, u)
			}
			msgs = append(msgs, end)
			for _, m := range msgs {
				if _, err := lnwire.WriteMessage(conn, m, 0); err != nil {
					return
				}
			}
		default:
			srvrLog.Warnf("dropping unsupported inbound message %T", q)
			return
		}
	}
}

// ConnectToHost dials addr, expected to identify itself as hostPub, and
// wires the resulting connection to chanID's link -- creating a brand new
// HostedCommits via InvokeHostedChannel if none is persisted yet.
func (s *server) ConnectToHost(addr string, hostPub *btcec.PublicKey,
	refundScriptPubKey []byte) error {

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("unable to dial %v: %w", addr, err)
	}

	clientPub := s.signer.PubKey()
	chanID := lnwallet.ChannelIDFor(clientPub, hostPub)

	hc, err := s.db.FetchHostedChannel(chanID)
	if err == channeldb.ErrChannelNoExist {
		hc = &lnwallet.HostedCommits{
			RemoteInfo: lnwallet.RemoteInfo{
				NodeID:             hostPub,
				NodeSpecificPubKey: clientPub,
			},
			LastCrossSignedState: lnwire.LastCrossSignedState{
				RefundScriptPubKey: refundScriptPubKey,
			},
			State: lnwallet.StateWaitForInit,
		}
		if err := s.db.PutHostedChannel(chanID, hc); err != nil {
			conn.Close()
			return fmt.Errorf("unable to persist new channel: %w", err)
		}
	} else if err != nil {
		conn.Close()
		return fmt.Errorf("unable to load channel: %w", err)
	}

	p := newPeer(conn, hostPub)
	link := htlcswitch.NewHostedChannelLink(
		chanID, s.db, s.signer, hostPub, p, hc, s.checker, s.currentBlockDay,
	)
	link.Start()
	p.SetLink(link)

	s.registry.AddLink(chanID, link)

	var key [33]byte
	copy(key[:], hostPub.SerializeCompressed())
	s.peersMtx.Lock()
	s.peers[key] = p
	s.peersMtx.Unlock()

	return p.Start()
}

// noopTransport is used for links restored at startup before their peer
// has reconnected: sends simply fail, which the driver already treats the
// same as any other transient send error. A restored link keeps this
// transport; ConnectToHost starts a separate link bound to the real peer
// and registers it under the same channel id.
type noopTransport struct{}

func (noopTransport) SendMessages(msgs ...lnwire.Message) error {
	return fmt.Errorf("no transport attached yet")
}
