package wire

import (
	"golang.org/x/crypto/cryptobyte"

	"meld/internal/domain"
)

func addProposal(b *cryptobyte.Builder, p domain.Proposal) {
	b.AddUint16(uint16(p.Type))
	switch p.Type {
	case domain.ProposalTypeAdd:
		addKeyPackageFull(b, p.Add.KeyPackage)
	case domain.ProposalTypeUpdate:
		addKeyPackageFull(b, p.Update.KeyPackage)
	case domain.ProposalTypeRemove:
		b.AddUint32(uint32(p.Remove.Removed))
	case domain.ProposalTypePreSharedKey:
		addOpaque16(b, p.PreSharedKey.PSKID)
	case domain.ProposalTypeReInit:
		addOpaque8(b, p.ReInit.GroupID)
		b.AddUint16(uint16(p.ReInit.Version))
		b.AddUint16(uint16(p.ReInit.CipherSuite))
	default:
		b.SetError(decodeErr("proposal type"))
	}
}

func readProposal(s *cryptobyte.String, p *domain.Proposal) bool {
	var t uint16
	if !s.ReadUint16(&t) {
		return false
	}
	p.Type = domain.ProposalType(t)
	switch p.Type {
	case domain.ProposalTypeAdd:
		p.Add = &domain.AddProposal{}
		return readKeyPackage(s, &p.Add.KeyPackage)
	case domain.ProposalTypeUpdate:
		p.Update = &domain.UpdateProposal{}
		return readKeyPackage(s, &p.Update.KeyPackage)
	case domain.ProposalTypeRemove:
		p.Remove = &domain.RemoveProposal{}
		var idx uint32
		if !s.ReadUint32(&idx) {
			return false
		}
		p.Remove.Removed = domain.LeafIndex(idx)
		return true
	case domain.ProposalTypePreSharedKey:
		p.PreSharedKey = &domain.PreSharedKeyProposal{}
		return readOpaque16(s, &p.PreSharedKey.PSKID)
	case domain.ProposalTypeReInit:
		p.ReInit = &domain.ReInitProposal{}
		var gid []byte
		var version, suite uint16
		if !readOpaque8(s, &gid) || !s.ReadUint16(&version) || !s.ReadUint16(&suite) {
			return false
		}
		p.ReInit.GroupID = gid
		p.ReInit.Version = domain.ProtocolVersion(version)
		p.ReInit.CipherSuite = domain.CipherSuite(suite)
		return true
	default:
		return false
	}
}

// MarshalProposal encodes a standalone proposal. Proposal references hash
// this encoding.
func MarshalProposal(p domain.Proposal) []byte {
	var b cryptobyte.Builder
	addProposal(&b, p)
	return b.BytesOrPanic()
}

// UnmarshalProposal decodes a standalone proposal.
func UnmarshalProposal(data []byte) (domain.Proposal, error) {
	var p domain.Proposal
	s := cryptobyte.String(data)
	if !readProposal(&s, &p) || !s.Empty() {
		return domain.Proposal{}, decodeErr("proposal")
	}
	return p, nil
}

func addUpdatePath(b *cryptobyte.Builder, path domain.UpdatePath) {
	addKeyPackageFull(b, path.LeafKeyPackage)
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, n := range path.Nodes {
			addKey32(b, n.PublicKey)
			b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, ct := range n.EncryptedPathSecrets {
					addHPKECiphertext(b, ct)
				}
			})
		}
	})
}

func readUpdatePath(s *cryptobyte.String, path *domain.UpdatePath) bool {
	if !readKeyPackage(s, &path.LeafKeyPackage) {
		return false
	}
	var nodes cryptobyte.String
	if !readVector32(s, &nodes) {
		return false
	}
	for !nodes.Empty() {
		var n domain.UpdatePathNode
		if !readKey32(&nodes, (*[32]byte)(&n.PublicKey)) {
			return false
		}
		var cts cryptobyte.String
		if !readVector32(&nodes, &cts) {
			return false
		}
		for !cts.Empty() {
			var ct domain.HPKECiphertext
			if !readHPKECiphertext(&cts, &ct) {
				return false
			}
			n.EncryptedPathSecrets = append(n.EncryptedPathSecrets, ct)
		}
		path.Nodes = append(path.Nodes, n)
	}
	return true
}

func addCommit(b *cryptobyte.Builder, c domain.Commit) {
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, por := range c.Proposals {
			b.AddUint8(uint8(por.Type))
			switch por.Type {
			case domain.ProposalOrRefProposal:
				addProposal(b, *por.Proposal)
			case domain.ProposalOrRefReference:
				addOpaque8(b, por.Reference)
			default:
				b.SetError(decodeErr("proposal-or-ref type"))
			}
		}
	})
	addOptional(b, c.Path != nil, func(b *cryptobyte.Builder) {
		addUpdatePath(b, *c.Path)
	})
}

func readCommit(s *cryptobyte.String, c *domain.Commit) bool {
	var props cryptobyte.String
	if !readVector32(s, &props) {
		return false
	}
	for !props.Empty() {
		var por domain.ProposalOrRef
		var t uint8
		if !props.ReadUint8(&t) {
			return false
		}
		por.Type = domain.ProposalOrRefType(t)
		switch por.Type {
		case domain.ProposalOrRefProposal:
			por.Proposal = &domain.Proposal{}
			if !readProposal(&props, por.Proposal) {
				return false
			}
		case domain.ProposalOrRefReference:
			if !readOpaque8(&props, &por.Reference) {
				return false
			}
		default:
			return false
		}
		c.Proposals = append(c.Proposals, por)
	}
	var hasPath bool
	if !readOptional(s, &hasPath) {
		return false
	}
	if hasPath {
		c.Path = &domain.UpdatePath{}
		return readUpdatePath(s, c.Path)
	}
	return true
}
