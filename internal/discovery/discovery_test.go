package discovery

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func mustMarshal(t *testing.T, rec PeerRecord) []byte {
	t.Helper()
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal PeerRecord: %v", err)
	}
	return b
}

func loopbackAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 7645}
}

func TestListenerIgnoresOwnAnnouncements(t *testing.T) {
	l := NewListener("self-id")

	l.handle(mustMarshal(t, PeerRecord{ID: "self-id", Nickname: "me"}), loopbackAddr())

	if peers := l.Peers(); len(peers) != 0 {
		t.Fatalf("expected own announcement to be filtered out, got %v", peers)
	}
}

func TestListenerRecordsPeer(t *testing.T) {
	l := NewListener("self-id")

	l.handle(mustMarshal(t, PeerRecord{ID: "peer-1", Nickname: "alice", Shares: []string{"music"}}), loopbackAddr())

	peers := l.Peers()
	if len(peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(peers))
	}
	if peers[0].ID != "peer-1" || peers[0].Nickname != "alice" {
		t.Fatalf("unexpected peer recorded: %+v", peers[0])
	}

	select {
	case ev := <-l.Events():
		if ev.ID != "peer-1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for announcement event")
	}
}

func TestListenerDropsMalformedAnnouncements(t *testing.T) {
	l := NewListener("self-id")

	l.handle([]byte("not json"), loopbackAddr())

	if peers := l.Peers(); len(peers) != 0 {
		t.Fatalf("expected malformed announcement to be dropped, got %v", peers)
	}
}

func TestSweepEvictsStalePeers(t *testing.T) {
	l := NewListener("self-id")

	l.handle(mustMarshal(t, PeerRecord{ID: "peer-1", Nickname: "alice"}), loopbackAddr())
	if len(l.Peers()) != 1 {
		t.Fatal("expected peer recorded before sweep")
	}

	l.mu.Lock()
	l.peers["peer-1"].LastSeen = time.Now().Add(-staleAfter - time.Second)
	l.mu.Unlock()

	l.sweep()

	if peers := l.Peers(); len(peers) != 0 {
		t.Fatalf("expected stale peer evicted, got %v", peers)
	}
}

func TestHandleSignalsUpdate(t *testing.T) {
	l := NewListener("self-id")

	l.handle(mustMarshal(t, PeerRecord{ID: "peer-1", Nickname: "alice"}), loopbackAddr())

	select {
	case <-l.Updates():
	case <-time.After(time.Second):
		t.Fatal("expected an update signal after a new peer was recorded")
	}
}

func TestUpdatesSignalCoalesces(t *testing.T) {
	l := NewListener("self-id")

	l.handle(mustMarshal(t, PeerRecord{ID: "peer-1", Nickname: "alice"}), loopbackAddr())
	l.handle(mustMarshal(t, PeerRecord{ID: "peer-2", Nickname: "bob"}), loopbackAddr())

	select {
	case <-l.Updates():
	case <-time.After(time.Second):
		t.Fatal("expected at least one coalesced update signal")
	}

	select {
	case <-l.Updates():
		t.Fatal("expected the second signal to be coalesced into the first, not queued")
	default:
	}
}

func TestSweepSignalsUpdateOnlyWhenSomethingEvicted(t *testing.T) {
	l := NewListener("self-id")

	l.handle(mustMarshal(t, PeerRecord{ID: "peer-1", Nickname: "alice"}), loopbackAddr())
	<-l.Updates() // drain the signal from handle()

	l.sweep()
	select {
	case <-l.Updates():
		t.Fatal("expected no update signal from a sweep that evicted nothing")
	default:
	}

	l.mu.Lock()
	l.peers["peer-1"].LastSeen = time.Now().Add(-staleAfter - time.Second)
	l.mu.Unlock()

	l.sweep()
	select {
	case <-l.Updates():
	case <-time.After(time.Second):
		t.Fatal("expected an update signal once the stale peer was evicted")
	}
}

func TestAnnouncerSendRejectsOversizedPayload(t *testing.T) {
	a, err := NewAnnouncer()
	if err != nil {
		t.Fatalf("NewAnnouncer: %v", err)
	}
	defer a.Close()

	huge := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		huge = append(huge, "a-rather-long-share-name-to-pad-the-payload-out")
	}

	err = a.Send(PeerRecord{ID: "self-id", Shares: huge})
	if err == nil {
		t.Fatal("expected an error for an oversized announce payload")
	}
}

func TestAnnouncerRunSendsOnStart(t *testing.T) {
	a, err := NewAnnouncer()
	if err != nil {
		t.Fatalf("NewAnnouncer: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	a.Run(ctx, func() PeerRecord {
		calls++
		return PeerRecord{ID: "self-id"}
	})

	if calls == 0 {
		t.Fatal("expected record() to be called at least once")
	}
}
