package store

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"meld/internal/domain"
)

const (
	groupsDir    = "groups"
	stateSuffix  = ".json.enc"
	cursorsFile  = "cursors.json"
)

// GroupFileStore persists encrypted group state, one file per group, plus
// the plaintext delivery cursors.
type GroupFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewGroupFileStore returns a GroupFileStore rooted at dir.
func NewGroupFileStore(dir string) *GroupFileStore {
	return &GroupFileStore{dir: dir}
}

func (s *GroupFileStore) statePath(id domain.GroupID) string {
	return filepath.Join(s.dir, groupsDir, id.String()+stateSuffix)
}

// SaveGroupState seals and writes one group's serialized state.
func (s *GroupFileStore) SaveGroupState(passphrase string, id domain.GroupID, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	N, r, p := scryptParamsDefault()
	ct, err := encrypt(passphrase, state, N, r, p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.dir, groupsDir), 0o700); err != nil {
		return err
	}
	return writeFile(s.statePath(id), ct, 0o600)
}

// LoadGroupState reads and opens one group's serialized state.
func (s *GroupFileStore) LoadGroupState(passphrase string, id domain.GroupID) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(s.statePath(id))
	if err != nil {
		return nil, false, err
	}
	if b == nil {
		return nil, false, nil
	}
	pt, err := decrypt(passphrase, b)
	if err != nil {
		return nil, false, err
	}
	return pt, true, nil
}

// ListGroups returns the ids with stored state.
func (s *GroupFileStore) ListGroups() ([]domain.GroupID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, groupsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []domain.GroupID
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), stateSuffix)
		if !ok {
			continue
		}
		id, err := hex.DecodeString(name)
		if err != nil {
			continue
		}
		out = append(out, domain.GroupID(id))
	}
	return out, nil
}

// SaveCursor records the highest delivery sequence processed for a group.
func (s *GroupFileStore) SaveCursor(id domain.GroupID, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, cursorsFile)
	m := map[string]uint64{}
	_ = readJSON(path, &m)
	m[id.String()] = seq
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return writeJSON(path, m, 0o600)
}

// LoadCursor returns the stored cursor, zero when none exists.
func (s *GroupFileStore) LoadCursor(id domain.GroupID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[string]uint64{}
	if err := readJSON(filepath.Join(s.dir, cursorsFile), &m); err != nil {
		return 0, err
	}
	return m[id.String()], nil
}

// Compile-time assertion that GroupFileStore implements domain.GroupStore.
var _ domain.GroupStore = (*GroupFileStore)(nil)
