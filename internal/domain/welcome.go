package domain

// ParentNode is a non-blank internal ratchet tree node.
type ParentNode struct {
	PublicKey      HPKEPublicKey `json:"public_key"`
	UnmergedLeaves []LeafIndex   `json:"unmerged_leaves,omitempty"`
}

// RatchetTreeNode is one slot of the exported tree in node order: even
// indices are leaves, odd indices parents. A node with both pointers nil is
// blank.
type RatchetTreeNode struct {
	Leaf   *KeyPackage `json:"leaf,omitempty"`
	Parent *ParentNode `json:"parent,omitempty"`
}

// Blank reports whether the slot is empty.
func (n RatchetTreeNode) Blank() bool { return n.Leaf == nil && n.Parent == nil }

// GroupContext is the state every member must agree on. Its encoding is
// bound into signatures, the key schedule and HPKE encryptions.
type GroupContext struct {
	Version                 ProtocolVersion `json:"version"`
	CipherSuite             CipherSuite     `json:"cipher_suite"`
	GroupID                 GroupID         `json:"group_id"`
	Epoch                   Epoch           `json:"epoch"`
	TreeHash                []byte          `json:"tree_hash"`
	ConfirmedTranscriptHash []byte          `json:"confirmed_transcript_hash"`
	Extensions              []Extension     `json:"extensions,omitempty"`
}

// GroupInfo describes the group state a welcome admits a new member into.
// The signer's leaf signs the TBS encoding; the tree is embedded so joiners
// need no side channel.
type GroupInfo struct {
	Context         GroupContext      `json:"context"`
	Tree            []RatchetTreeNode `json:"tree"`
	ConfirmationTag []byte            `json:"confirmation_tag"`
	Signer          LeafIndex         `json:"signer"`
	Signature       []byte            `json:"signature"`
}

// GroupSecrets is the per-joiner payload of a welcome: the joiner secret
// feeding the key schedule and, when the committer sent an update path, the
// path secret of the node above the joiner's leaf.
type GroupSecrets struct {
	JoinerSecret []byte `json:"joiner_secret"`
	PathSecret   []byte `json:"path_secret,omitempty"`
}

// EncryptedGroupSecrets holds GroupSecrets sealed to one new member's init
// key, addressed by key package reference.
type EncryptedGroupSecrets struct {
	NewMember        KeyPackageRef  `json:"new_member"`
	EncryptedSecrets HPKECiphertext `json:"encrypted_secrets"`
}

// Welcome admits the members added by a commit. EncryptedGroupInfo is sealed
// with a key derived from the joiner secret, so only addressed members can
// read the group state.
type Welcome struct {
	CipherSuite        CipherSuite             `json:"cipher_suite"`
	Secrets            []EncryptedGroupSecrets `json:"secrets"`
	EncryptedGroupInfo []byte                  `json:"encrypted_group_info"`
}
