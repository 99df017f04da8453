package wire

import (
	"golang.org/x/crypto/cryptobyte"

	"meld/internal/domain"
)

func addGroupContext(b *cryptobyte.Builder, ctx domain.GroupContext) {
	b.AddUint16(uint16(ctx.Version))
	b.AddUint16(uint16(ctx.CipherSuite))
	addOpaque8(b, ctx.GroupID)
	b.AddUint64(uint64(ctx.Epoch))
	addOpaque8(b, ctx.TreeHash)
	addOpaque8(b, ctx.ConfirmedTranscriptHash)
	addExtensions(b, ctx.Extensions)
}

// MarshalGroupContext encodes a group context. The key schedule, HPKE info
// strings and content signatures all bind this encoding.
func MarshalGroupContext(ctx domain.GroupContext) []byte {
	var b cryptobyte.Builder
	addGroupContext(&b, ctx)
	return b.BytesOrPanic()
}

func readGroupContext(s *cryptobyte.String, ctx *domain.GroupContext) bool {
	var version, suite uint16
	var epoch uint64
	var gid []byte
	ok := s.ReadUint16(&version) &&
		s.ReadUint16(&suite) &&
		readOpaque8(s, &gid) &&
		s.ReadUint64(&epoch) &&
		readOpaque8(s, &ctx.TreeHash) &&
		readOpaque8(s, &ctx.ConfirmedTranscriptHash) &&
		readExtensions(s, &ctx.Extensions)
	if !ok {
		return false
	}
	ctx.Version = domain.ProtocolVersion(version)
	ctx.CipherSuite = domain.CipherSuite(suite)
	ctx.GroupID = gid
	ctx.Epoch = domain.Epoch(epoch)
	return true
}

// --- ratchet tree ---

func addRatchetTree(b *cryptobyte.Builder, nodes []domain.RatchetTreeNode) {
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
		for i, n := range nodes {
			switch {
			case n.Blank():
				b.AddUint8(0)
			case i%2 == 0:
				if n.Leaf == nil {
					b.SetError(decodeErr("parent node at leaf index"))
					return
				}
				b.AddUint8(1)
				addKeyPackageFull(b, *n.Leaf)
			default:
				if n.Parent == nil {
					b.SetError(decodeErr("leaf node at parent index"))
					return
				}
				b.AddUint8(2)
				addKey32(b, n.Parent.PublicKey)
				b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
					for _, l := range n.Parent.UnmergedLeaves {
						b.AddUint32(uint32(l))
					}
				})
			}
		}
	})
}

// MarshalRatchetTree encodes the public tree in node order.
func MarshalRatchetTree(nodes []domain.RatchetTreeNode) []byte {
	var b cryptobyte.Builder
	addRatchetTree(&b, nodes)
	return b.BytesOrPanic()
}

func readRatchetTree(s *cryptobyte.String, nodes *[]domain.RatchetTreeNode) bool {
	var body cryptobyte.String
	if !readVector32(s, &body) {
		return false
	}
	for !body.Empty() {
		var tag uint8
		if !body.ReadUint8(&tag) {
			return false
		}
		var n domain.RatchetTreeNode
		switch tag {
		case 0:
		case 1:
			n.Leaf = &domain.KeyPackage{}
			if !readKeyPackage(&body, n.Leaf) {
				return false
			}
		case 2:
			n.Parent = &domain.ParentNode{}
			if !readKey32(&body, (*[32]byte)(&n.Parent.PublicKey)) {
				return false
			}
			var unmerged cryptobyte.String
			if !readVector32(&body, &unmerged) {
				return false
			}
			for !unmerged.Empty() {
				var l uint32
				if !unmerged.ReadUint32(&l) {
					return false
				}
				n.Parent.UnmergedLeaves = append(n.Parent.UnmergedLeaves, domain.LeafIndex(l))
			}
		default:
			return false
		}
		*nodes = append(*nodes, n)
	}
	return true
}

// UnmarshalRatchetTree decodes an exported public tree.
func UnmarshalRatchetTree(data []byte) ([]domain.RatchetTreeNode, error) {
	var nodes []domain.RatchetTreeNode
	s := cryptobyte.String(data)
	if !readRatchetTree(&s, &nodes) || !s.Empty() {
		return nil, decodeErr("ratchet tree")
	}
	return nodes, nil
}

// --- tree hash inputs ---

// LeafNodeHashInput is the preimage for a leaf's tree hash.
func LeafNodeHashInput(index uint32, leaf *domain.KeyPackage) []byte {
	var b cryptobyte.Builder
	b.AddUint32(index)
	addOptional(&b, leaf != nil, func(b *cryptobyte.Builder) {
		addKeyPackageFull(b, *leaf)
	})
	return b.BytesOrPanic()
}

// ParentNodeHashInput is the preimage for an internal node's tree hash.
func ParentNodeHashInput(index uint32, node *domain.ParentNode, leftHash, rightHash []byte) []byte {
	var b cryptobyte.Builder
	b.AddUint32(index)
	addOptional(&b, node != nil, func(b *cryptobyte.Builder) {
		addKey32(b, node.PublicKey)
		b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
			for _, l := range node.UnmergedLeaves {
				b.AddUint32(uint32(l))
			}
		})
	})
	addOpaque8(&b, leftHash)
	addOpaque8(&b, rightHash)
	return b.BytesOrPanic()
}

// ParentHashInput is the preimage for the parent hash chained down an update
// path.
func ParentHashInput(nodeKey domain.HPKEPublicKey, parentHash []byte) []byte {
	var b cryptobyte.Builder
	addKey32(&b, nodeKey)
	addOpaque8(&b, parentHash)
	return b.BytesOrPanic()
}

// --- group info ---

func addGroupInfoTBS(b *cryptobyte.Builder, gi domain.GroupInfo) {
	addGroupContext(b, gi.Context)
	addRatchetTree(b, gi.Tree)
	addOpaque8(b, gi.ConfirmationTag)
	b.AddUint32(uint32(gi.Signer))
}

// GroupInfoTBS is the portion of a group info the signer's leaf signs.
func GroupInfoTBS(gi domain.GroupInfo) []byte {
	var b cryptobyte.Builder
	addGroupInfoTBS(&b, gi)
	return b.BytesOrPanic()
}

// MarshalGroupInfo encodes a complete group info.
func MarshalGroupInfo(gi domain.GroupInfo) []byte {
	var b cryptobyte.Builder
	addGroupInfoTBS(&b, gi)
	addOpaque16(&b, gi.Signature)
	return b.BytesOrPanic()
}

// UnmarshalGroupInfo decodes a complete group info.
func UnmarshalGroupInfo(data []byte) (domain.GroupInfo, error) {
	var gi domain.GroupInfo
	s := cryptobyte.String(data)
	var signer uint32
	ok := readGroupContext(&s, &gi.Context) &&
		readRatchetTree(&s, &gi.Tree) &&
		readOpaque8(&s, &gi.ConfirmationTag) &&
		s.ReadUint32(&signer) &&
		readOpaque16(&s, &gi.Signature) &&
		s.Empty()
	if !ok {
		return domain.GroupInfo{}, decodeErr("group info")
	}
	gi.Signer = domain.LeafIndex(signer)
	return gi, nil
}

// --- welcome ---

// MarshalGroupSecrets encodes the per-joiner welcome payload.
func MarshalGroupSecrets(gs domain.GroupSecrets) []byte {
	var b cryptobyte.Builder
	addOpaque8(&b, gs.JoinerSecret)
	addOptional(&b, gs.PathSecret != nil, func(b *cryptobyte.Builder) {
		addOpaque8(b, gs.PathSecret)
	})
	return b.BytesOrPanic()
}

// UnmarshalGroupSecrets decodes the per-joiner welcome payload.
func UnmarshalGroupSecrets(data []byte) (domain.GroupSecrets, error) {
	var gs domain.GroupSecrets
	s := cryptobyte.String(data)
	var hasPath bool
	if !readOpaque8(&s, &gs.JoinerSecret) || !readOptional(&s, &hasPath) {
		return domain.GroupSecrets{}, decodeErr("group secrets")
	}
	if hasPath && !readOpaque8(&s, &gs.PathSecret) {
		return domain.GroupSecrets{}, decodeErr("group secrets")
	}
	if !s.Empty() {
		return domain.GroupSecrets{}, decodeErr("group secrets")
	}
	return gs, nil
}

func addWelcome(b *cryptobyte.Builder, w domain.Welcome) {
	b.AddUint16(uint16(w.CipherSuite))
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, egs := range w.Secrets {
			b.AddBytes(egs.NewMember[:])
			addHPKECiphertext(b, egs.EncryptedSecrets)
		}
	})
	addOpaque32(b, w.EncryptedGroupInfo)
}

func readWelcome(s *cryptobyte.String, w *domain.Welcome) bool {
	var suite uint16
	if !s.ReadUint16(&suite) {
		return false
	}
	w.CipherSuite = domain.CipherSuite(suite)
	var secrets cryptobyte.String
	if !readVector32(s, &secrets) {
		return false
	}
	for !secrets.Empty() {
		var egs domain.EncryptedGroupSecrets
		if !secrets.CopyBytes(egs.NewMember[:]) ||
			!readHPKECiphertext(&secrets, &egs.EncryptedSecrets) {
			return false
		}
		w.Secrets = append(w.Secrets, egs)
	}
	return readOpaque32(s, &w.EncryptedGroupInfo)
}

// MarshalWelcome encodes a welcome message.
func MarshalWelcome(w domain.Welcome) []byte {
	var b cryptobyte.Builder
	addWelcome(&b, w)
	return b.BytesOrPanic()
}

// UnmarshalWelcome decodes a welcome message.
func UnmarshalWelcome(data []byte) (domain.Welcome, error) {
	var w domain.Welcome
	s := cryptobyte.String(data)
	if !readWelcome(&s, &w) || !s.Empty() {
		return domain.Welcome{}, decodeErr("welcome")
	}
	return w, nil
}
