package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/landohd/landohd/internal/coordinator"
	"github.com/landohd/landohd/internal/identity"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	id := identity.New("tester", t.TempDir(), "127.0.0.1:0")
	coord := coordinator.New(id, 1)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coord.Run(ctx)

	return New(coord)
}

func TestHandleAddShareReturnsShareOnSuccess(t *testing.T) {
	b := newTestBridge(t)
	dir := t.TempDir()

	body, _ := json.Marshal(map[string]any{"name": "music", "paths": []string{dir}})
	req := httptest.NewRequest(http.MethodPost, "/shares", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	c := b.e.NewContext(req, rec)
	if err := b.handleAddShare(c); err != nil {
		t.Fatalf("handleAddShare: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}

	var share identity.Share
	if err := json.Unmarshal(rec.Body.Bytes(), &share); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if share.Name != "music" {
		t.Fatalf("expected share named music, got %q", share.Name)
	}
}

func TestHandleAddShareRejectsMalformedBody(t *testing.T) {
	b := newTestBridge(t)

	req := httptest.NewRequest(http.MethodPost, "/shares", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	c := b.e.NewContext(req, rec)
	if err := b.handleAddShare(c); err != nil {
		t.Fatalf("handleAddShare: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestHandleRequestDirRejectsUnknownPeer(t *testing.T) {
	b := newTestBridge(t)

	body, _ := json.Marshal(map[string]string{"peer_id": "nope", "share": "music"})
	req := httptest.NewRequest(http.MethodPost, "/request-dir", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	c := b.e.NewContext(req, rec)
	if err := b.handleRequestDir(c); err != nil {
		t.Fatalf("handleRequestDir: %v", err)
	}

	// The discovery listener isn't running in this test, so RequestDir
	// fails fast rather than accepting the job.
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a dispatch with no listener running, got %d", rec.Code)
	}
}

func TestEnvelopeDiscriminatesEventTypes(t *testing.T) {
	peerEv := envelope(coordinator.PeerSetUpdated{})
	m, ok := peerEv.(echo.Map)
	if !ok {
		t.Fatalf("expected an echo.Map, got %T", peerEv)
	}
	if m["type"] != "peer-set-updated" {
		t.Fatalf("expected type peer-set-updated, got %v", m["type"])
	}

	fileEv := envelope(coordinator.FileSetResult{PeerID: "p1"})
	m, ok = fileEv.(echo.Map)
	if !ok {
		t.Fatalf("expected an echo.Map, got %T", fileEv)
	}
	if m["type"] != "file-set-result" || m["peer_id"] != "p1" {
		t.Fatalf("unexpected envelope: %+v", m)
	}
}
