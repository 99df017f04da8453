package store

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"meld/internal/domain"
)

const (
	kpPrivFile = "keypackages.json.enc"
	kpRefsFile = "keypackage_refs.json"
)

// KeyPackageFileStore keeps the private halves of published key packages,
// keyed by reference, until a welcome consumes them.
type KeyPackageFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewKeyPackageFileStore returns a KeyPackageFileStore rooted at dir.
func NewKeyPackageFileStore(dir string) *KeyPackageFileStore {
	return &KeyPackageFileStore{dir: dir}
}

func (s *KeyPackageFileStore) load(passphrase string) (map[string]domain.KeyPackagePrivate, error) {
	b, err := readFile(filepath.Join(s.dir, kpPrivFile))
	if err != nil {
		return nil, err
	}
	m := map[string]domain.KeyPackagePrivate{}
	if b == nil {
		return m, nil
	}
	pt, err := decrypt(passphrase, b)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pt, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *KeyPackageFileStore) save(passphrase string, m map[string]domain.KeyPackagePrivate) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	N, r, p := scryptParamsDefault()
	ct, err := encrypt(passphrase, raw, N, r, p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(s.dir, kpPrivFile), ct, 0o600); err != nil {
		return err
	}

	// Refs are public identifiers; a plaintext sidecar lets listing work
	// without the passphrase.
	refs := make([]string, 0, len(m))
	for r := range m {
		refs = append(refs, r)
	}
	sort.Strings(refs)
	return writeJSON(filepath.Join(s.dir, kpRefsFile), refs, 0o600)
}

// SaveKeyPackagePrivate merges one private half into the store.
func (s *KeyPackageFileStore) SaveKeyPackagePrivate(passphrase string, p domain.KeyPackagePrivate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load(passphrase)
	if err != nil {
		return err
	}
	m[p.Ref.String()] = p
	return s.save(passphrase, m)
}

// ConsumeKeyPackagePrivate removes and returns the private half for ref.
func (s *KeyPackageFileStore) ConsumeKeyPackagePrivate(passphrase string, ref domain.KeyPackageRef) (domain.KeyPackagePrivate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load(passphrase)
	if err != nil {
		return domain.KeyPackagePrivate{}, false, err
	}
	p, ok := m[ref.String()]
	if !ok {
		return domain.KeyPackagePrivate{}, false, nil
	}
	delete(m, ref.String())
	if err := s.save(passphrase, m); err != nil {
		return domain.KeyPackagePrivate{}, false, err
	}
	return p, true, nil
}

// ListKeyPackageRefs returns the refs with a stored private half.
func (s *KeyPackageFileStore) ListKeyPackageRefs() ([]domain.KeyPackageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refs []string
	if err := readJSON(filepath.Join(s.dir, kpRefsFile), &refs); err != nil {
		return nil, err
	}
	out := make([]domain.KeyPackageRef, 0, len(refs))
	for _, r := range refs {
		raw, err := hex.DecodeString(r)
		if err != nil || len(raw) != len(domain.KeyPackageRef{}) {
			continue
		}
		var ref domain.KeyPackageRef
		copy(ref[:], raw)
		out = append(out, ref)
	}
	return out, nil
}

// Compile-time assertion that KeyPackageFileStore implements domain.KeyPackageStore.
var _ domain.KeyPackageStore = (*KeyPackageFileStore)(nil)
