// Package discovery implements LAN peer discovery over IPv4 link-local
// multicast: an Announcer that periodically broadcasts this peer's
// PeerRecord, and a Listener that maintains a table of peers heard from
// recently, evicting entries that have gone stale.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/landohd/landohd/internal/config"
	"github.com/landohd/landohd/internal/metrics"
)

// MulticastAddress is the IPv4 link-local multicast group and port the
// daemon announces on and listens to.
const MulticastAddress = "224.0.0.123:7645"

const (
	announceInterval = 5 * time.Second
	announceJitter   = 500 * time.Millisecond
	readDeadline     = 100 * time.Millisecond
	staleAfter       = 30 * time.Second
	maxPayloadBytes  = 1024
)

// PeerRecord is what gets marshaled onto the wire and what the Listener
// keeps per known peer. It deliberately carries no IP address or
// timestamp of its own; the Listener fills those in from the UDP packet
// envelope, since that's the only address information that can be trusted.
type PeerRecord struct {
	ID       string   `json:"id"`
	Nickname string   `json:"nickname"`
	Shares   []string `json:"shares"`
}

// Peer is a PeerRecord plus the discovery-side bookkeeping the Listener
// attaches to it.
type Peer struct {
	PeerRecord
	Address  string    `json:"address"`
	LastSeen time.Time `json:"last_seen"`
}

// Announcer periodically broadcasts a PeerRecord supplied by a callback,
// so the caller's identity snapshot is always current at send time.
type Announcer struct {
	mu   sync.Mutex
	conn *net.UDPConn
}

// NewAnnouncer dials the multicast group, ready to send.
func NewAnnouncer() (*Announcer, error) {
	addr, err := net.ResolveUDPAddr("udp4", MulticastAddress)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve multicast addr: %w", err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("discovery: dial multicast: %w", err)
	}
	return &Announcer{conn: conn}, nil
}

// Close releases the underlying socket.
func (a *Announcer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn.Close()
}

// Send marshals rec and emits it as a single datagram immediately,
// outside the periodic schedule. The Coordinator uses this for the
// "re-announce immediately" step after a successful AddShare, so peers
// don't have to wait out the rest of the current tick to see a new share.
func (a *Announcer) Send(rec PeerRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("discovery: encode announce payload: %w", err)
	}
	if len(payload) > maxPayloadBytes {
		return fmt.Errorf("discovery: announce payload of %d bytes exceeds %d byte datagram bound", len(payload), maxPayloadBytes)
	}

	a.mu.Lock()
	_, err = a.conn.Write(payload)
	a.mu.Unlock()
	if err != nil {
		metrics.AnnounceFailures.Inc()
		return fmt.Errorf("discovery: announce send failed: %w", err)
	}
	return nil
}

// Run sends record() on a jittered ~5s period until ctx is canceled. A
// failed send is logged and does not stop the loop; multicast delivery on
// a LAN is best-effort by nature.
func (a *Announcer) Run(ctx context.Context, record func() PeerRecord) {
	send := func() {
		if err := a.Send(record()); err != nil {
			logrus.WithError(err).Warn("discovery: announce send failed")
		}
	}

	send()

	timer := time.NewTimer(jittered())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			send()
			timer.Reset(jittered())
		}
	}
}

func jittered() time.Duration {
	// time.Now().UnixNano() low bits as a cheap, dependency-free jitter
	// source; this isn't cryptographic, just enough to keep peers from
	// announcing in lockstep.
	n := time.Now().UnixNano() % int64(2*announceJitter)
	return announceInterval - announceJitter + time.Duration(n)
}

// Listener maintains the table of peers seen on the multicast group.
type Listener struct {
	mu    sync.RWMutex
	peers map[string]*Peer
	self  string

	events        chan Peer
	updates       chan struct{}
	sweepInterval time.Duration
}

// NewListener constructs a Listener. self is this peer's own ID, so its
// own announcements can be filtered out of the table. Events, if drained,
// deliver one Peer per processed announcement; the channel is buffered
// and non-blocking sends are dropped rather than stalling the read loop.
// The staleness-sweep period is read from internal/config at construction
// time (defaulting to 15s), so an operator can tune it without a rebuild.
func NewListener(self string) *Listener {
	return &Listener{
		peers:         make(map[string]*Peer),
		self:          self,
		events:        make(chan Peer, 64),
		updates:       make(chan struct{}, 1),
		sweepInterval: time.Duration(config.GetStaleSweepPeriod()) * time.Second,
	}
}

// Events returns the channel of observed peer announcements.
func (l *Listener) Events() <-chan Peer {
	return l.events
}

// Updates signals, once per table mutation, that the peer set changed.
// It never carries a payload — consumers call Peers() for the current
// snapshot — and a coalesced send (capacity 1, non-blocking) is
// sufficient since the caller only cares that *something* changed since
// it last looked, not how many times.
func (l *Listener) Updates() <-chan struct{} {
	return l.updates
}

func (l *Listener) signalUpdate() {
	select {
	case l.updates <- struct{}{}:
	default:
	}
}

// Peers returns a snapshot of every peer currently considered live.
func (l *Listener) Peers() []Peer {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Peer, 0, len(l.peers))
	for _, p := range l.peers {
		out = append(out, *p)
	}
	return out
}

// Run joins the multicast group and processes datagrams until ctx is
// canceled. It also runs the staleness sweep on its own ticker.
func (l *Listener) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", MulticastAddress)
	if err != nil {
		return fmt.Errorf("discovery: resolve multicast addr: %w", err)
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("discovery: join multicast group: %w", err)
	}
	defer conn.Close()

	go l.sweepLoop(ctx)

	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			logrus.WithError(err).Warn("discovery: multicast read error")
			continue
		}

		l.handle(buf[:n], src)
	}
}

func (l *Listener) handle(data []byte, src *net.UDPAddr) {
	var rec PeerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logrus.WithError(err).Debug("discovery: dropping malformed announcement")
		return
	}
	if rec.ID == "" || rec.ID == l.self {
		return
	}

	peer := Peer{
		PeerRecord: rec,
		Address:    src.IP.String(),
		LastSeen:   time.Now(),
	}

	l.mu.Lock()
	l.peers[rec.ID] = &peer
	count := len(l.peers)
	l.mu.Unlock()
	metrics.PeersKnown.Set(float64(count))
	l.signalUpdate()

	select {
	case l.events <- peer:
	default:
	}
}

func (l *Listener) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Listener) sweep() {
	cutoff := time.Now().Add(-staleAfter)

	l.mu.Lock()
	changed := false
	for id, p := range l.peers {
		if p.LastSeen.Before(cutoff) {
			delete(l.peers, id)
			changed = true
		}
	}
	count := len(l.peers)
	l.mu.Unlock()

	metrics.PeersKnown.Set(float64(count))
	if changed {
		l.signalUpdate()
	}
}
