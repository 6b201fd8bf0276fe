// Package bridge exposes the daemon's command surface to a local UI: a
// small REST API over echo for issuing commands, a websocket endpoint for
// pushing peer-discovery and transfer events, and the Prometheus /metrics
// endpoint.
package bridge

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/landohd/landohd/internal/coordinator"
)

// Bridge wires a Coordinator to an HTTP surface.
type Bridge struct {
	coord *coordinator.Coordinator
	e     *echo.Echo

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New builds a Bridge around coord. Call Start to begin serving.
func New(coord *coordinator.Coordinator) *Bridge {
	b := &Bridge{
		coord:   coord,
		e:       echo.New(),
		clients: make(map[*websocket.Conn]struct{}),
	}
	b.e.HideBanner = true
	b.e.Use(middleware.Recover())
	b.routes()
	return b
}

func (b *Bridge) routes() {
	b.e.GET("/healthz", b.handleHealthz)
	b.e.GET("/shares", b.handleListShares)
	b.e.POST("/shares", b.handleAddShare)
	b.e.DELETE("/shares/:name", b.handleRemoveShare)
	b.e.POST("/nickname", b.handleSetNickname)
	b.e.POST("/listen/start", b.handleStartListen)
	b.e.POST("/listen/stop", b.handleStopListen)
	b.e.POST("/broadcast/start", b.handleStartBroadcast)
	b.e.POST("/broadcast/stop", b.handleStopBroadcast)
	b.e.GET("/peers", b.handlePeers)
	b.e.POST("/serve/start", b.handleStartServe)
	b.e.POST("/serve/stop", b.handleStopServe)
	b.e.POST("/request-dir", b.handleRequestDir)
	b.e.GET("/events", b.handleEvents)
	b.e.GET("/stats", b.handleStats)
	b.e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Start serves the bridge HTTP surface on addr. It blocks until the
// listener returns an error (including on graceful shutdown).
func (b *Bridge) Start(addr string) error {
	return b.e.Start(addr)
}

// Shutdown stops the bridge's HTTP server and closes any open websocket
// connections.
func (b *Bridge) Shutdown() error {
	b.mu.Lock()
	for conn := range b.clients {
		conn.Close()
	}
	b.clients = make(map[*websocket.Conn]struct{})
	b.mu.Unlock()

	return b.e.Close()
}

func (b *Bridge) handleHealthz(c echo.Context) error {
	resp, err := b.coord.Healthz()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (b *Bridge) handleListShares(c echo.Context) error {
	return c.JSON(http.StatusOK, b.coord.Shares())
}

func (b *Bridge) handleAddShare(c echo.Context) error {
	var req struct {
		Name  string   `json:"name"`
		Paths []string `json:"paths"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	share, err := b.coord.AddShare(req.Name, req.Paths)
	if err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, share)
}

func (b *Bridge) handleRemoveShare(c echo.Context) error {
	if err := b.coord.RemoveShare(c.Param("name")); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (b *Bridge) handleSetNickname(c echo.Context) error {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := b.coord.SetNickname(req.Nickname); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (b *Bridge) handleStartListen(c echo.Context) error {
	if err := b.coord.StartListen(); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (b *Bridge) handleStopListen(c echo.Context) error {
	if err := b.coord.StopListen(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (b *Bridge) handleStartBroadcast(c echo.Context) error {
	if err := b.coord.StartBroadcast(); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (b *Bridge) handleStopBroadcast(c echo.Context) error {
	if err := b.coord.StopBroadcast(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (b *Bridge) handlePeers(c echo.Context) error {
	return c.JSON(http.StatusOK, b.coord.Peers())
}

func (b *Bridge) handleStartServe(c echo.Context) error {
	var req struct {
		Address string `json:"address"`
	}
	// A bodiless request (curl -X POST with no payload) is the common
	// case for "start serving on the configured default"; Bind tolerates
	// an empty body here so only malformed JSON is rejected.
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
	}
	if err := b.coord.StartServe(req.Address); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (b *Bridge) handleStopServe(c echo.Context) error {
	if err := b.coord.StopServe(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (b *Bridge) handleRequestDir(c echo.Context) error {
	var req struct {
		PeerID string `json:"peer_id"`
		Share  string `json:"share"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := b.coord.RequestDir(req.PeerID, req.Share); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	return c.NoContent(http.StatusAccepted)
}

// hostStats is a snapshot of local machine load, useful for a UI deciding
// whether it's safe to kick off a large batch download right now.
type hostStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemUsed    uint64  `json:"mem_used_bytes"`
	MemTotal   uint64  `json:"mem_total_bytes"`
	DiskFree   uint64  `json:"disk_free_bytes"`
	DiskTotal  uint64  `json:"disk_total_bytes"`
}

func (b *Bridge) handleStats(c echo.Context) error {
	stats := hostStats{}

	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		stats.CPUPercent = pcts[0]
	} else if err != nil {
		logrus.WithError(err).Debug("bridge: cpu.Percent failed")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemUsed = vm.Used
		stats.MemTotal = vm.Total
	} else {
		logrus.WithError(err).Debug("bridge: mem.VirtualMemory failed")
	}

	destination := b.coord.Destination()
	if du, err := disk.Usage(destination); err == nil {
		stats.DiskFree = du.Free
		stats.DiskTotal = du.Total
	} else {
		logrus.WithError(err).WithField("path", destination).Debug("bridge: disk.Usage failed")
	}

	return c.JSON(http.StatusOK, stats)
}

// handleEvents upgrades to a websocket and registers the connection to
// receive every event Forward relays: peer-table snapshots on each change
// and file-set results when a RequestDir job settles. Callers that just
// want a one-shot peer list should hit GET /peers instead.
func (b *Bridge) handleEvents(c echo.Context) error {
	conn, err := b.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	// Drain inbound frames (pings, close) until the client disconnects;
	// this handler never reads application data from the client.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

// Forward relays Coordinator events onto every connected websocket client
// until ctx is canceled or events is closed. Each event is wrapped with a
// "type" discriminator so a UI client can dispatch on one field rather
// than inspecting shape, matching the peer-set-updated/file-set-result
// naming from the command/event surface.
func (b *Bridge) Forward(ctx context.Context, events <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.Broadcast(envelope(ev))
		}
	}
}

func envelope(ev any) any {
	switch v := ev.(type) {
	case coordinator.PeerSetUpdated:
		return echo.Map{"type": "peer-set-updated", "peers": v.Peers}
	case coordinator.FileSetResult:
		return echo.Map{
			"type":       "file-set-result",
			"peer_id":    v.PeerID,
			"share":      v.Share,
			"successful": v.Successful,
			"failed":     v.Failed,
		}
	default:
		return echo.Map{"type": "unknown"}
	}
}

// Broadcast pushes payload as JSON to every connected websocket client.
// Connections that error on write are dropped.
func (b *Bridge) Broadcast(payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.clients {
		if err := conn.WriteJSON(payload); err != nil {
			logrus.WithError(err).Debug("bridge: dropping websocket client after write error")
			conn.Close()
			delete(b.clients, conn)
		}
	}
}
