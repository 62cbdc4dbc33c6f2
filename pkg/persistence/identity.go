package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/csf-agent/peerlink/pkg/wire"
	"github.com/google/uuid"
)

// IdentityVersion is the current version of the identity file format.
const IdentityVersion = 1

// ErrInvalidIdentity indicates an identity file without a usable agent id.
var ErrInvalidIdentity = errors.New("invalid identity file")

// AgentIdentity is the persisted identity of this agent.
type AgentIdentity struct {
	// Version is the file format version.
	Version int `json:"version"`

	// AgentID is generated once and never changes.
	AgentID uuid.UUID `json:"agent_id"`

	// AgentName is the configured human-readable name.
	AgentName string `json:"agent_name"`

	// CreatedAt is when the identity was first generated.
	CreatedAt time.Time `json:"created_at"`
}

// Identity returns the identity presented during the session handshake.
func (a *AgentIdentity) Identity() wire.Identity {
	return wire.Identity{AgentID: a.AgentID, AgentName: a.AgentName}
}

// IdentityStore manages the identity file.
type IdentityStore struct {
	mu   sync.Mutex
	path string
}

// NewIdentityStore creates a store backed by path.
func NewIdentityStore(path string) *IdentityStore {
	return &IdentityStore{path: path}
}

// Path returns the identity file path.
func (s *IdentityStore) Path() string {
	return s.path
}

// Load reads the identity from disk.
// Returns nil, nil if the file doesn't exist.
func (s *IdentityStore) Load() (*AgentIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save writes the identity with owner-only permissions.
func (s *IdentityStore) Save(id *AgentIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(id)
}

// LoadOrCreate returns the stored identity, generating and saving a new one
// on first run. A changed name is written back; the agent id is kept.
func (s *IdentityStore) LoadOrCreate(name string) (*AgentIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return nil, err
	}
	if id == nil {
		id = &AgentIdentity{
			AgentID:   uuid.New(),
			AgentName: name,
			CreatedAt: time.Now().UTC(),
		}
		return id, s.save(id)
	}
	if id.AgentName != name {
		id.AgentName = name
		return id, s.save(id)
	}
	return id, nil
}

// Clear removes the identity file.
func (s *IdentityStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *IdentityStore) load() (*AgentIdentity, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	id := &AgentIdentity{}
	if err := json.Unmarshal(data, id); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	if id.AgentID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing agent_id", ErrInvalidIdentity)
	}
	return id, nil
}

func (s *IdentityStore) save(id *AgentIdentity) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	id.Version = IdentityVersion
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
