package domain

// Identity holds your long-term signing keys and the basic credential they
// authenticate.
type Identity struct {
	Name   Username       `json:"name"`
	EdPub  Ed25519Public  `json:"edpub"`
	EdPriv Ed25519Private `json:"edpriv"`
}

// Credential returns the basic credential presented in key packages.
func (id Identity) Credential() Credential {
	return Credential{Identity: []byte(id.Name), SignatureKey: id.EdPub}
}

// Member is one roster entry derived from the ratchet tree.
type Member struct {
	Index    LeafIndex `json:"index"`
	Identity []byte    `json:"identity"`
}

// StateUpdate summarises the roster and epoch changes an applied commit
// produced.
type StateUpdate struct {
	Active  bool    `json:"active"`
	Epoch   Epoch   `json:"epoch"`
	Added   []Member `json:"added,omitempty"`
	Updated []Member `json:"updated,omitempty"`
	Removed []Member `json:"removed,omitempty"`
}

// ProcessedKind discriminates what processing an incoming message yielded.
type ProcessedKind uint8

const (
	ProcessedApplication ProcessedKind = 1
	ProcessedProposal    ProcessedKind = 2
	ProcessedCommit      ProcessedKind = 3
)

// ProcessedMessage is the outcome of feeding one incoming MLSMessage to a
// group: decrypted application data, a cached proposal, or a state update
// from an applied commit.
type ProcessedMessage struct {
	Kind            ProcessedKind `json:"kind"`
	SenderIndex     LeafIndex     `json:"sender_index"`
	SenderIdentity  []byte        `json:"sender_identity,omitempty"`
	ApplicationData []byte        `json:"application_data,omitempty"`
	Update          *StateUpdate  `json:"update,omitempty"`
}
