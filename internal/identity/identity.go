// Package identity owns the daemon's persisted peer identity: its stable
// UUID, its display nickname, the set of directories it shares, and the
// local destination directory downloaded files land in. It is kept
// separate from internal/config, which tunes ambient runtime knobs (worker
// pool sizing, poll periods) from environment rather than from a
// user-editable, peer-identifying JSON file.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxAnnouncePayload bounds the JSON-encoded PeerRecord broadcast over
// multicast. A single UDP datagram on a typical LAN MTU comfortably carries
// this much without fragmentation risk.
const maxAnnouncePayload = 1024

// ErrShareSetTooLarge is returned by AddShare when accepting the share
// would grow the announce payload past maxAnnouncePayload.
var ErrShareSetTooLarge = errors.New("identity: share set too large to announce")

// Share is one locally shared directory: a display name plus the backing
// filesystem paths that are merged under it.
type Share struct {
	Name  string   `json:"name"`
	Paths []string `json:"paths"`
}

// State is the JSON-persisted snapshot of an Identity. Callers get copies
// of it from Snapshot; mutating a returned State does not affect the
// Identity it came from.
type State struct {
	ID          string  `json:"id"`
	Nickname    string  `json:"nickname"`
	Shares      []Share `json:"shared_directories"`
	Destination string  `json:"destination"`
	Address     string  `json:"address"`
}

// Identity guards a State behind a RWMutex. Its mutators only change the
// in-memory state; persisting it is a separate Save call, which the
// Coordinator makes after each mutating command.
type Identity struct {
	mu    sync.RWMutex
	state State
	path  string
}

// New creates a fresh Identity with a newly generated ID, ready to be
// saved. nickname, if empty, defaults to the generated ID.
func New(nickname, destination, address string) *Identity {
	id := uuid.NewString()
	if nickname == "" {
		nickname = id
	}
	return &Identity{
		state: State{
			ID:          id,
			Nickname:    nickname,
			Shares:      []Share{},
			Destination: destination,
			Address:     address,
		},
		path: configPath(),
	}
}

// Load reads a previously saved Identity from the platform config path. It
// returns an error if no config file exists yet; callers should fall back
// to New in that case.
func Load() (*Identity, error) {
	path := configPath()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read config: %w", err)
	}

	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("identity: decode config: %w", err)
	}
	if s.Shares == nil {
		s.Shares = []Share{}
	}

	return &Identity{state: s, path: path}, nil
}

// configPath returns the per-OS location of the daemon's identity file.
func configPath() string {
	if runtime.GOOS == "windows" {
		appdata := os.Getenv("APPDATA")
		return filepath.Join(appdata, "LANdoh", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".landoh_config")
}

// Snapshot returns a deep copy of the current state, safe to read without
// holding any lock.
func (i *Identity) Snapshot() State {
	i.mu.RLock()
	defer i.mu.RUnlock()

	shares := make([]Share, len(i.state.Shares))
	for idx, s := range i.state.Shares {
		paths := make([]string, len(s.Paths))
		copy(paths, s.Paths)
		shares[idx] = Share{Name: s.Name, Paths: paths}
	}

	st := i.state
	st.Shares = shares
	return st
}

// Save writes the current state to the platform config path, replacing any
// prior contents. It creates the parent directory if necessary and writes
// via a temp file plus rename so a crash mid-write never leaves a
// truncated config behind.
func (i *Identity) Save() error {
	i.mu.RLock()
	st := i.state
	shares := make([]Share, len(i.state.Shares))
	copy(shares, i.state.Shares)
	st.Shares = shares
	i.mu.RUnlock()

	if i.path == "" {
		i.path = configPath()
	}

	if err := os.MkdirAll(filepath.Dir(i.path), 0o755); err != nil {
		return fmt.Errorf("identity: create config dir: %w", err)
	}

	payload, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(i.path), ".landoh_config-*")
	if err != nil {
		return fmt.Errorf("identity: create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("identity: close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), i.path); err != nil {
		return fmt.Errorf("identity: rename temp config: %w", err)
	}

	return nil
}

// AddShare creates a new share named name backed by paths. If a share with
// that name already exists the call is a no-op: it returns the zero Share
// and a nil error, and the existing share's paths are left unchanged.
// Nonexistent or non-directory paths are dropped with a warning rather than
// rejecting the whole call. If name itself resolves to an existing
// directory on disk, its base name is substituted for name (before the
// duplicate check) so the advertised share name never leaks a local
// absolute path.
//
// The share is rejected with ErrShareSetTooLarge if adding it would grow
// the JSON-encoded share set past what a single announce datagram can
// carry; in that case the identity is left unmodified.
func (i *Identity) AddShare(name string, paths []string) (Share, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	resolvedName := name
	if info, err := os.Stat(name); err == nil && info.IsDir() {
		resolvedName = filepath.Base(filepath.Clean(name))
	}

	for _, s := range i.state.Shares {
		if s.Name == resolvedName {
			return Share{}, nil
		}
	}

	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			logrus.WithField("path", p).Warn("identity: dropping non-directory share path")
			continue
		}
		existing = append(existing, p)
	}

	candidate := Share{Name: resolvedName, Paths: existing}
	trial := append(append([]Share{}, i.state.Shares...), candidate)
	if announcePayloadSize(i.state.ID, i.state.Nickname, trial) > maxAnnouncePayload {
		return Share{}, ErrShareSetTooLarge
	}

	i.state.Shares = trial
	return candidate, nil
}

// RemoveShare drops the named share, if present. It is a no-op otherwise.
func (i *Identity) RemoveShare(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	kept := i.state.Shares[:0]
	for _, s := range i.state.Shares {
		if s.Name != name {
			kept = append(kept, s)
		}
	}
	i.state.Shares = kept
}

// SetNickname updates the advertised display name.
func (i *Identity) SetNickname(nickname string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state.Nickname = nickname
}

// SetDestination updates the directory downloaded files are written to.
func (i *Identity) SetDestination(destination string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state.Destination = destination
}

// announceNames is the subset of share data actually broadcast over
// multicast: names only, never backing paths.
func announceNames(shares []Share) []string {
	names := make([]string, len(shares))
	for i, s := range shares {
		names[i] = s.Name
	}
	return names
}

// announcePayloadSize estimates the JSON size of the PeerRecord a given
// share set would produce, using a local struct with the same JSON field
// names as discovery.PeerRecord rather than importing the discovery package.
func announcePayloadSize(id, nickname string, shares []Share) int {
	type probe struct {
		ID        string   `json:"id"`
		Nickname  string   `json:"nickname"`
		Shares    []string `json:"shares"`
	}
	b, err := json.Marshal(probe{ID: id, Nickname: nickname, Shares: announceNames(shares)})
	if err != nil {
		return maxAnnouncePayload + 1
	}
	return len(b)
}
