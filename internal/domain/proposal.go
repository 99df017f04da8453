package domain

// ProposalType discriminates the proposal variants.
type ProposalType uint16

const (
	ProposalTypeAdd          ProposalType = 1
	ProposalTypeUpdate       ProposalType = 2
	ProposalTypeRemove       ProposalType = 3
	ProposalTypePreSharedKey ProposalType = 4
	ProposalTypeReInit       ProposalType = 5
)

// AddProposal asks the group to add the key package's owner as a new leaf.
type AddProposal struct {
	KeyPackage KeyPackage `json:"key_package"`
}

// UpdateProposal replaces the sender's own leaf with a fresh key package.
type UpdateProposal struct {
	KeyPackage KeyPackage `json:"key_package"`
}

// RemoveProposal asks the group to evict the member at the given leaf.
type RemoveProposal struct {
	Removed LeafIndex `json:"removed"`
}

// PreSharedKeyProposal injects an externally agreed secret into the next
// epoch's key schedule.
type PreSharedKeyProposal struct {
	PSKID []byte `json:"psk_id"`
}

// ReInitProposal signals the group should be recreated with new parameters.
// It is validated (it must stand alone in a commit) but not executed.
type ReInitProposal struct {
	GroupID     GroupID         `json:"group_id"`
	Version     ProtocolVersion `json:"version"`
	CipherSuite CipherSuite     `json:"cipher_suite"`
}

// Proposal is the tagged union of all proposal variants. Exactly one pointer
// matching Type is non-nil.
type Proposal struct {
	Type         ProposalType          `json:"type"`
	Add          *AddProposal          `json:"add,omitempty"`
	Update       *UpdateProposal       `json:"update,omitempty"`
	Remove       *RemoveProposal       `json:"remove,omitempty"`
	PreSharedKey *PreSharedKeyProposal `json:"psk,omitempty"`
	ReInit       *ReInitProposal       `json:"reinit,omitempty"`
}

// ProposalOrRefType discriminates inline proposals from by-reference ones.
type ProposalOrRefType uint8

const (
	ProposalOrRefProposal  ProposalOrRefType = 1
	ProposalOrRefReference ProposalOrRefType = 2
)

// ProposalOrRef is a commit entry: either the proposal itself or the hash
// reference of a previously received standalone proposal message.
type ProposalOrRef struct {
	Type      ProposalOrRefType `json:"type"`
	Proposal  *Proposal         `json:"proposal,omitempty"`
	Reference []byte            `json:"reference,omitempty"`
}

// HPKECiphertext is a single HPKE encapsulation: the KEM output plus the
// sealed payload.
type HPKECiphertext struct {
	KEMOutput  []byte `json:"kem_output"`
	Ciphertext []byte `json:"ciphertext"`
}

// UpdatePathNode carries one refreshed ratchet tree node: its new public key
// and the path secret sealed to each member of the copath resolution at that
// level, in resolution order.
type UpdatePathNode struct {
	PublicKey            HPKEPublicKey    `json:"public_key"`
	EncryptedPathSecrets []HPKECiphertext `json:"encrypted_path_secrets"`
}

// UpdatePath is the committer's refreshed leaf plus one node per non-empty
// level of its direct path, leaf to root.
type UpdatePath struct {
	LeafKeyPackage KeyPackage       `json:"leaf_key_package"`
	Nodes          []UpdatePathNode `json:"nodes"`
}

// Commit bundles the proposals being applied and, unless the commit only
// adds members, the sender's update path.
type Commit struct {
	Proposals []ProposalOrRef `json:"proposals"`
	Path      *UpdatePath     `json:"path,omitempty"`
}
