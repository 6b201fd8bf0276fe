// Package coordinator is the daemon's single-writer actor: every mutation
// of shared state (shares, nickname, which subsystems are running) flows
// through one goroutine's command loop, so the Announcer, Listener and
// TransferService never need their own locks around the identity they
// were handed at start time.
package coordinator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/landohd/landohd/internal/config"
	"github.com/landohd/landohd/internal/discovery"
	"github.com/landohd/landohd/internal/identity"
	"github.com/landohd/landohd/internal/pb"
	"github.com/landohd/landohd/internal/transfer"
)

// defaultTransferPort is the TransferService port assumed for any peer
// discovered over multicast. Announce datagrams carry no port (the
// original source's request_dir handler hardcodes the same convention,
// appending ":9001" to whatever IP the announce arrived from), so a
// RequestDir dispatch has no other way to learn where a peer's
// TransferService actually listens.
const defaultTransferPort = "9001"

// requestDirTimeout bounds a single RequestDir job (enumeration plus the
// full sequential batch download) so a peer that vanishes mid-transfer
// can't leave the job running forever.
const requestDirTimeout = 10 * time.Minute

// reply is what every command gets back: an error, or a typed value for
// commands that return data.
type reply struct {
	err   error
	value any
}

// PeerSetUpdated is emitted on the Coordinator's event outbox whenever the
// discovery Listener's peer table changes, carrying the complete current
// set (never a delta) per spec's "emit the complete current peer set"
// contract.
type PeerSetUpdated struct {
	Peers []discovery.Peer `json:"peers"`
}

// FileSetResult is emitted once a dispatched RequestDir job settles,
// carrying every file attempted and whether it succeeded.
type FileSetResult struct {
	PeerID     string   `json:"peer_id"`
	Share      string   `json:"share"`
	Successful []string `json:"successful"`
	Failed     []string `json:"failed"`
}

type commandKind int

const (
	cmdAddShare commandKind = iota
	cmdRemoveShare
	cmdSetNickname
	cmdSetDestination
	cmdStartListen
	cmdStopListen
	cmdStartBroadcast
	cmdStopBroadcast
	cmdStartServe
	cmdStopServe
	cmdHealthz
	cmdListShares
	cmdRequestDir
	cmdExit
)

type command struct {
	kind    commandKind
	name    string
	paths   []string
	addr    string
	peerID  string
	share   string
	replyTo chan reply
}

// Coordinator owns the identity, the TransferService, and the lifecycle of
// the Announcer and Listener subsystems. All public methods are safe to
// call from any goroutine: they enqueue a command and block for the
// single command-loop goroutine's reply.
type Coordinator struct {
	id      *identity.Identity
	service *transfer.Service

	cmds   chan command
	events chan any

	mu           sync.Mutex // guards the subsystem handles below, touched by the command loop and by Peers
	announceStop context.CancelFunc
	announcer    *discovery.Announcer
	listenStop   context.CancelFunc
	listener     *discovery.Listener
	grpcServer   *grpc.Server
	serveAddr    string
}

// New constructs a Coordinator. concurrency sizes the TransferService's
// directory-enumeration worker pool; the pool bounding concurrently open
// GetFile descriptors is sized separately from config.GetIOConcurrencyFactor.
func New(id *identity.Identity, concurrency int) *Coordinator {
	return &Coordinator{
		id:      id,
		service: transfer.NewService(id, concurrency, config.GetIOConcurrencyFactor()),
		cmds:    make(chan command),
		events:  make(chan any, 64),
	}
}

// Events returns the Coordinator's event outbox: PeerSetUpdated whenever
// discovery's peer table changes, FileSetResult once a RequestDir job
// settles. Sends onto it are non-blocking, so a UI that stops draining
// this channel loses events rather than stalling the command loop.
func (c *Coordinator) Events() <-chan any {
	return c.events
}

func (c *Coordinator) emit(ev any) {
	select {
	case c.events <- ev:
	default:
		logrus.Warn("coordinator: event outbox full, dropping event")
	}
}

// Run processes commands until ctx is canceled or an Exit command arrives.
// It is meant to be started as its own goroutine from main.
func (c *Coordinator) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("coordinator: command loop recovered from panic")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.shutdownSubsystems()
			return
		case cmd := <-c.cmds:
			c.handle(ctx, cmd)
			if cmd.kind == cmdExit {
				return
			}
		}
	}
}

func (c *Coordinator) send(kind commandKind, cmd command) reply {
	cmd.kind = kind
	cmd.replyTo = make(chan reply, 1)
	c.cmds <- cmd
	return <-cmd.replyTo
}

func (c *Coordinator) handle(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdAddShare:
		share, err := c.id.AddShare(cmd.name, cmd.paths)
		if err == nil {
			if saveErr := c.id.Save(); saveErr != nil {
				logrus.WithError(saveErr).Warn("coordinator: failed to persist identity after AddShare")
			}
			c.reannounce()
		}
		cmd.replyTo <- reply{err: err, value: share}

	case cmdRemoveShare:
		c.id.RemoveShare(cmd.name)
		if err := c.id.Save(); err != nil {
			logrus.WithError(err).Warn("coordinator: failed to persist identity after RemoveShare")
		}
		cmd.replyTo <- reply{}

	case cmdSetNickname:
		c.id.SetNickname(cmd.name)
		if err := c.id.Save(); err != nil {
			logrus.WithError(err).Warn("coordinator: failed to persist identity after SetNickname")
		}
		cmd.replyTo <- reply{}

	case cmdSetDestination:
		c.id.SetDestination(cmd.name)
		if err := c.id.Save(); err != nil {
			logrus.WithError(err).Warn("coordinator: failed to persist identity after SetDestination")
		}
		cmd.replyTo <- reply{}

	case cmdStartListen:
		cmd.replyTo <- reply{err: c.startListen(ctx)}

	case cmdStopListen:
		c.stopListen()
		cmd.replyTo <- reply{}

	case cmdStartBroadcast:
		cmd.replyTo <- reply{err: c.startBroadcast(ctx)}

	case cmdStopBroadcast:
		c.stopBroadcast()
		cmd.replyTo <- reply{}

	case cmdStartServe:
		cmd.replyTo <- reply{err: c.startServe(cmd.addr)}

	case cmdStopServe:
		c.stopServe()
		cmd.replyTo <- reply{}

	case cmdHealthz:
		resp, err := c.service.Healthz(ctx, &pb.HealthzRequest{})
		cmd.replyTo <- reply{err: err, value: resp}

	case cmdListShares:
		cmd.replyTo <- reply{value: c.id.Snapshot().Shares}

	case cmdRequestDir:
		cmd.replyTo <- reply{err: c.requestDir(cmd.peerID, cmd.share)}

	case cmdExit:
		c.shutdownSubsystems()
		cmd.replyTo <- reply{}
	}
}

// AddShare creates a named share backed by paths; adding a name that is
// already shared is a no-op that returns the zero Share.
func (c *Coordinator) AddShare(name string, paths []string) (identity.Share, error) {
	r := c.send(cmdAddShare, command{name: name, paths: paths})
	share, _ := r.value.(identity.Share)
	return share, r.err
}

// RemoveShare drops a named share.
func (c *Coordinator) RemoveShare(name string) error {
	return c.send(cmdRemoveShare, command{name: name}).err
}

// SetNickname updates the advertised display name.
func (c *Coordinator) SetNickname(nickname string) error {
	return c.send(cmdSetNickname, command{name: nickname}).err
}

// SetDestination updates the directory downloads are written to.
func (c *Coordinator) SetDestination(destination string) error {
	return c.send(cmdSetDestination, command{name: destination}).err
}

// StartListen starts the discovery Listener, if not already running.
func (c *Coordinator) StartListen() error {
	return c.send(cmdStartListen, command{}).err
}

// StopListen stops the discovery Listener, if running.
func (c *Coordinator) StopListen() error {
	return c.send(cmdStopListen, command{}).err
}

// StartBroadcast starts the Announcer, if not already running.
func (c *Coordinator) StartBroadcast() error {
	return c.send(cmdStartBroadcast, command{}).err
}

// StopBroadcast stops the Announcer, if running.
func (c *Coordinator) StopBroadcast() error {
	return c.send(cmdStopBroadcast, command{}).err
}

// StartServe starts the TransferService gRPC server on addr, if not
// already serving.
func (c *Coordinator) StartServe(addr string) error {
	return c.send(cmdStartServe, command{addr: addr}).err
}

// StopServe stops the TransferService gRPC server, if running.
func (c *Coordinator) StopServe() error {
	return c.send(cmdStopServe, command{}).err
}

// Healthz reports current subsystem status.
func (c *Coordinator) Healthz() (*pb.HealthzResponse, error) {
	r := c.send(cmdHealthz, command{})
	resp, _ := r.value.(*pb.HealthzResponse)
	return resp, r.err
}

// Destination returns the directory downloads are written to. Identity
// already guards this behind its own lock, so this reads it directly
// rather than round-tripping through the command loop.
func (c *Coordinator) Destination() string {
	return c.id.Snapshot().Destination
}

// Shares returns the current share set.
func (c *Coordinator) Shares() []identity.Share {
	r := c.send(cmdListShares, command{})
	shares, _ := r.value.([]identity.Share)
	return shares
}

// Exit stops every subsystem and terminates the command loop.
func (c *Coordinator) Exit() error {
	return c.send(cmdExit, command{}).err
}

// RequestDir dispatches a Downloader job against peerID's share, fetching
// its directory listing and then every file in it. The command itself
// returns as soon as the job is dispatched; completion is reported later
// as a FileSetResult event on Events().
func (c *Coordinator) RequestDir(peerID, share string) error {
	return c.send(cmdRequestDir, command{peerID: peerID, share: share}).err
}

func (c *Coordinator) startListen(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listenStop != nil {
		return fmt.Errorf("coordinator: already listening")
	}

	listener := discovery.NewListener(c.id.Snapshot().ID)
	lctx, cancel := context.WithCancel(ctx)
	c.listenStop = cancel
	c.listener = listener
	c.service.SetListening(true)

	go func() {
		if err := listener.Run(lctx); err != nil {
			logrus.WithError(err).Error("coordinator: discovery listener stopped")
		}
	}()

	// Forward every peer-table mutation as a complete-snapshot
	// PeerSetUpdated event; Updates() coalesces bursts into a single
	// pending signal so this never falls behind the listener.
	go func() {
		for {
			select {
			case <-lctx.Done():
				return
			case <-listener.Updates():
				c.emit(PeerSetUpdated{Peers: listener.Peers()})
			}
		}
	}()

	return nil
}

func (c *Coordinator) stopListen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listenStop == nil {
		return
	}
	c.listenStop()
	c.listenStop = nil
	c.listener = nil
	c.service.SetListening(false)
}

// Peers returns the currently known peer table, or nil if the Listener
// subsystem is not running.
func (c *Coordinator) Peers() []discovery.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Peers()
}

func (c *Coordinator) startBroadcast(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.announceStop != nil {
		return fmt.Errorf("coordinator: already broadcasting")
	}

	announcer, err := discovery.NewAnnouncer()
	if err != nil {
		return fmt.Errorf("coordinator: start announcer: %w", err)
	}

	actx, cancel := context.WithCancel(ctx)
	c.announceStop = cancel
	c.announcer = announcer
	c.service.SetBroadcasting(true)

	go func() {
		announcer.Run(actx, c.buildRecord)
		announcer.Close()
	}()

	return nil
}

// buildRecord snapshots the current identity into the wire-level
// PeerRecord the Announcer sends, shared between the periodic tick and
// the immediate re-announce AddShare triggers.
func (c *Coordinator) buildRecord() discovery.PeerRecord {
	st := c.id.Snapshot()
	names := make([]string, len(st.Shares))
	for i, s := range st.Shares {
		names[i] = s.Name
	}
	return discovery.PeerRecord{ID: st.ID, Nickname: st.Nickname, Shares: names}
}

// reannounce sends one out-of-cycle announce datagram if the Announcer is
// currently running, per spec's "then re-announce immediately" step after
// a successful AddShare. It is a no-op while broadcasting is stopped;
// the next periodic announce after StartBroadcast will carry the new
// share anyway.
func (c *Coordinator) reannounce() {
	c.mu.Lock()
	announcer := c.announcer
	c.mu.Unlock()
	if announcer == nil {
		return
	}
	if err := announcer.Send(c.buildRecord()); err != nil {
		logrus.WithError(err).Warn("coordinator: immediate re-announce after AddShare failed")
	}
}

func (c *Coordinator) stopBroadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.announceStop == nil {
		return
	}
	c.announceStop()
	c.announceStop = nil
	c.announcer = nil
	c.service.SetBroadcasting(false)
}

func (c *Coordinator) startServe(addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grpcServer != nil {
		return fmt.Errorf("coordinator: already serving on %s", c.serveAddr)
	}

	if addr == "" {
		addr = c.id.Snapshot().Address
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("coordinator: listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer(
		grpc.UnaryInterceptor(unaryErrorInterceptor),
		grpc.StreamInterceptor(streamErrorInterceptor),
	)
	pb.RegisterTransferServiceServer(srv, c.service)
	c.grpcServer = srv
	c.serveAddr = addr

	go func() {
		if err := srv.Serve(lis); err != nil {
			logrus.WithError(err).Info("coordinator: transfer server stopped")
		}
	}()

	return nil
}

func (c *Coordinator) stopServe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grpcServer == nil {
		return
	}
	c.grpcServer.GracefulStop()
	c.grpcServer = nil
	c.serveAddr = ""
}

func (c *Coordinator) shutdownSubsystems() {
	c.stopListen()
	c.stopBroadcast()
	c.stopServe()
	c.service.Stop()
}

// requestDir resolves peerID against the live discovery peer table and
// dispatches the batch download in its own goroutine, so the command
// loop is never blocked on a potentially slow remote peer. Dispatch fails
// synchronously only if the Listener isn't running or the peer is
// unknown; the batch's own successes and failures surface later as a
// FileSetResult event.
func (c *Coordinator) requestDir(peerID, share string) error {
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()
	if listener == nil {
		return fmt.Errorf("coordinator: discovery listener not running")
	}

	var addr string
	for _, p := range listener.Peers() {
		if p.ID == peerID {
			addr = net.JoinHostPort(p.Address, defaultTransferPort)
			break
		}
	}
	if addr == "" {
		return fmt.Errorf("coordinator: unknown peer %s", peerID)
	}

	destination := c.id.Snapshot().Destination
	go c.runRequestDir(addr, peerID, share, destination)
	return nil
}

func (c *Coordinator) runRequestDir(addr, peerID, share, destination string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestDirTimeout)
	defer cancel()

	downloader := transfer.NewDownloader(destination)

	files, err := downloader.GetDirectory(ctx, addr, share)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"peer": peerID, "share": share}).Error("coordinator: RequestDir enumeration failed")
		c.emit(FileSetResult{PeerID: peerID, Share: share})
		return
	}

	successful, failed, _ := downloader.GetAllFiles(ctx, addr, files)
	c.emit(FileSetResult{PeerID: peerID, Share: share, Successful: successful, Failed: failed})
}
