package keyschedule

import (
	"errors"
	"fmt"

	"meld/internal/crypto"
	"meld/internal/domain"
	"meld/internal/protocol/treemath"
	"meld/internal/util/memzero"
)

const (
	// maxSkipAhead bounds how far a receive chain may be ratcheted past its
	// current generation in one step.
	maxSkipAhead = 256
	// maxSkippedKeys bounds the total cache of out-of-order message keys.
	maxSkippedKeys = 1024
)

var (
	// ErrKeyConsumed indicates a request for a generation at or below one
	// already handed out.
	ErrKeyConsumed = errors.New("message key already consumed")
	// ErrTooFarAhead indicates a generation beyond the skip window.
	ErrTooFarAhead = errors.New("generation too far ahead of receive chain")
)

// MessageKeys is one single-use AEAD key and nonce from a sender's chain.
type MessageKeys struct {
	Key        []byte `json:"key"`
	Nonce      []byte `json:"nonce"`
	Generation uint32 `json:"generation"`
}

// SecretTree fans the epoch's encryption secret out to per-leaf chains.
// Node secrets are derived lazily and kept only until both children exist.
type SecretTree struct {
	Leaves  uint32                          `json:"leaves"`
	Secrets map[treemath.NodeIndex][]byte   `json:"secrets"`
	Chains  map[string]*chainState          `json:"chains"`
	Skipped map[string]MessageKeys          `json:"skipped"`
}

type chainState struct {
	Secret     []byte `json:"secret"`
	Generation uint32 `json:"generation"`
}

// NewSecretTree roots a secret tree for the epoch.
func NewSecretTree(leaves uint32, encryptionSecret []byte) *SecretTree {
	return &SecretTree{
		Leaves: leaves,
		Secrets: map[treemath.NodeIndex][]byte{
			treemath.Root(leaves): append([]byte(nil), encryptionSecret...),
		},
		Chains:  make(map[string]*chainState),
		Skipped: make(map[string]MessageKeys),
	}
}

func chainID(leaf domain.LeafIndex, ct domain.ContentType) string {
	kind := "handshake"
	if ct == domain.ContentTypeApplication {
		kind = "application"
	}
	return fmt.Sprintf("%d/%s", leaf, kind)
}

func skipID(leaf domain.LeafIndex, ct domain.ContentType, gen uint32) string {
	return fmt.Sprintf("%s/%d", chainID(leaf, ct), gen)
}

// nodeSecret derives (and caches) the secret for a tree node.
func (t *SecretTree) nodeSecret(x treemath.NodeIndex) ([]byte, error) {
	if s, ok := t.Secrets[x]; ok {
		return s, nil
	}
	if x == treemath.Root(t.Leaves) {
		return nil, errors.New("secret tree root consumed")
	}
	parent := treemath.Parent(x, t.Leaves)
	ps, err := t.nodeSecret(parent)
	if err != nil {
		return nil, err
	}
	left := treemath.Left(parent)
	leftSecret := crypto.ExpandWithLabel(ps, "tree", []byte("left"), crypto.SecretSize)
	rightSecret := crypto.ExpandWithLabel(ps, "tree", []byte("right"), crypto.SecretSize)
	t.Secrets[left] = leftSecret
	t.Secrets[treemath.Right(parent, t.Leaves)] = rightSecret
	memzero.Zero(ps)
	delete(t.Secrets, parent)
	return t.Secrets[x], nil
}

// chain returns the ratchet chain for a leaf and content type, deriving it
// from the leaf's tree secret on first use.
func (t *SecretTree) chain(leaf domain.LeafIndex, ct domain.ContentType) (*chainState, error) {
	id := chainID(leaf, ct)
	if c, ok := t.Chains[id]; ok {
		return c, nil
	}
	if uint32(leaf) >= t.Leaves {
		return nil, fmt.Errorf("leaf %d outside secret tree", leaf)
	}
	leafSecret, err := t.nodeSecret(treemath.LeafNode(uint32(leaf)))
	if err != nil {
		return nil, err
	}
	label := "handshake"
	if ct == domain.ContentTypeApplication {
		label = "application"
	}
	c := &chainState{Secret: crypto.ExpandWithLabel(leafSecret, label, nil, crypto.SecretSize)}
	t.Chains[id] = c

	// Drop the leaf secret once both chains exist.
	other := domain.ContentTypeApplication
	if ct == domain.ContentTypeApplication {
		other = domain.ContentTypeProposal
	}
	if _, ok := t.Chains[chainID(leaf, other)]; ok {
		memzero.Zero(leafSecret)
		delete(t.Secrets, treemath.LeafNode(uint32(leaf)))
	}
	return c, nil
}

func keysFromChain(c *chainState) MessageKeys {
	return MessageKeys{
		Key:        crypto.ExpandWithLabel(c.Secret, "key", nil, crypto.AEADKeySize),
		Nonce:      crypto.ExpandWithLabel(c.Secret, "nonce", nil, crypto.AEADNonceSize),
		Generation: c.Generation,
	}
}

func advance(c *chainState) {
	next := crypto.ExpandWithLabel(c.Secret, "secret", nil, crypto.SecretSize)
	memzero.Zero(c.Secret)
	c.Secret = next
	c.Generation++
}

// NextSending returns the next key of our own sending chain.
func (t *SecretTree) NextSending(leaf domain.LeafIndex, ct domain.ContentType) (MessageKeys, error) {
	c, err := t.chain(leaf, ct)
	if err != nil {
		return MessageKeys{}, err
	}
	keys := keysFromChain(c)
	advance(c)
	return keys, nil
}

// ForGeneration returns the key for a specific generation of a sender's
// chain, ratcheting forward and caching skipped keys as needed. Each key is
// handed out exactly once.
func (t *SecretTree) ForGeneration(leaf domain.LeafIndex, ct domain.ContentType, gen uint32) (MessageKeys, error) {
	if keys, ok := t.Skipped[skipID(leaf, ct, gen)]; ok {
		delete(t.Skipped, skipID(leaf, ct, gen))
		return keys, nil
	}
	c, err := t.chain(leaf, ct)
	if err != nil {
		return MessageKeys{}, err
	}
	if gen < c.Generation {
		return MessageKeys{}, ErrKeyConsumed
	}
	if gen-c.Generation > maxSkipAhead {
		return MessageKeys{}, ErrTooFarAhead
	}
	for c.Generation < gen {
		if len(t.Skipped) >= maxSkippedKeys {
			for k := range t.Skipped {
				delete(t.Skipped, k)
				break
			}
		}
		t.Skipped[skipID(leaf, ct, c.Generation)] = keysFromChain(c)
		advance(c)
	}
	keys := keysFromChain(c)
	advance(c)
	return keys, nil
}

// SenderDataKeys derives the key and nonce protecting a private message's
// sender data from the epoch secret and a sample of the ciphertext.
func SenderDataKeys(senderDataSecret, ciphertext []byte) (key, nonce []byte) {
	sample := ciphertext
	if len(sample) > crypto.SecretSize {
		sample = sample[:crypto.SecretSize]
	}
	key = crypto.ExpandWithLabel(senderDataSecret, "key", sample, crypto.AEADKeySize)
	nonce = crypto.ExpandWithLabel(senderDataSecret, "nonce", sample, crypto.AEADNonceSize)
	return key, nonce
}
