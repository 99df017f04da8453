package wire

import (
	"golang.org/x/crypto/cryptobyte"

	"meld/internal/domain"
)

func addFramedContent(b *cryptobyte.Builder, c domain.FramedContent) {
	addOpaque8(b, c.GroupID)
	b.AddUint64(uint64(c.Epoch))
	b.AddUint8(uint8(c.Sender.Type))
	b.AddUint32(uint32(c.Sender.LeafIndex))
	addOpaque32(b, c.AuthenticatedData)
	b.AddUint8(uint8(c.ContentType))
	switch c.ContentType {
	case domain.ContentTypeApplication:
		addOpaque32(b, c.ApplicationData)
	case domain.ContentTypeProposal:
		addProposal(b, *c.Proposal)
	case domain.ContentTypeCommit:
		addCommit(b, *c.Commit)
	default:
		b.SetError(decodeErr("content type"))
	}
}

func readFramedContent(s *cryptobyte.String, c *domain.FramedContent) bool {
	var gid []byte
	var epoch uint64
	var senderType uint8
	var leaf uint32
	ok := readOpaque8(s, &gid) &&
		s.ReadUint64(&epoch) &&
		s.ReadUint8(&senderType) &&
		s.ReadUint32(&leaf) &&
		readOpaque32(s, &c.AuthenticatedData)
	if !ok {
		return false
	}
	c.GroupID = gid
	c.Epoch = domain.Epoch(epoch)
	c.Sender = domain.Sender{Type: domain.SenderType(senderType), LeafIndex: domain.LeafIndex(leaf)}
	var ct uint8
	if !s.ReadUint8(&ct) {
		return false
	}
	c.ContentType = domain.ContentType(ct)
	switch c.ContentType {
	case domain.ContentTypeApplication:
		return readOpaque32(s, &c.ApplicationData)
	case domain.ContentTypeProposal:
		c.Proposal = &domain.Proposal{}
		return readProposal(s, c.Proposal)
	case domain.ContentTypeCommit:
		c.Commit = &domain.Commit{}
		return readCommit(s, c.Commit)
	default:
		return false
	}
}

// FramedContentTBS is what a member signs: version, wire format, content and
// the group context the sender held.
func FramedContentTBS(wf domain.WireFormat, c domain.FramedContent, ctx domain.GroupContext) []byte {
	var b cryptobyte.Builder
	b.AddUint16(uint16(domain.MLS10))
	b.AddUint16(uint16(wf))
	addFramedContent(&b, c)
	addGroupContext(&b, ctx)
	return b.BytesOrPanic()
}

func addAuthData(b *cryptobyte.Builder, ct domain.ContentType, auth domain.FramedContentAuthData) {
	addOpaque16(b, auth.Signature)
	if ct == domain.ContentTypeCommit {
		addOpaque8(b, auth.ConfirmationTag)
	}
}

func readAuthData(s *cryptobyte.String, ct domain.ContentType, auth *domain.FramedContentAuthData) bool {
	if !readOpaque16(s, &auth.Signature) {
		return false
	}
	if ct == domain.ContentTypeCommit {
		return readOpaque8(s, &auth.ConfirmationTag)
	}
	return true
}

// AuthenticatedContentTBM is the membership tag preimage: the signed TBS
// followed by the auth data.
func AuthenticatedContentTBM(contentTBS []byte, ct domain.ContentType, auth domain.FramedContentAuthData) []byte {
	var b cryptobyte.Builder
	addOpaque32(&b, contentTBS)
	addAuthData(&b, ct, auth)
	return b.BytesOrPanic()
}

// MarshalPublicMessage encodes an unencrypted handshake message.
func MarshalPublicMessage(m domain.PublicMessage) []byte {
	var b cryptobyte.Builder
	addFramedContent(&b, m.Content)
	addAuthData(&b, m.Content.ContentType, m.Auth)
	addOpaque8(&b, m.MembershipTag)
	return b.BytesOrPanic()
}

func readPublicMessage(s *cryptobyte.String, m *domain.PublicMessage) bool {
	return readFramedContent(s, &m.Content) &&
		readAuthData(s, m.Content.ContentType, &m.Auth) &&
		readOpaque8(s, &m.MembershipTag)
}

// UnmarshalPublicMessage decodes an unencrypted handshake message.
func UnmarshalPublicMessage(data []byte) (domain.PublicMessage, error) {
	var m domain.PublicMessage
	s := cryptobyte.String(data)
	if !readPublicMessage(&s, &m) || !s.Empty() {
		return domain.PublicMessage{}, decodeErr("public message")
	}
	return m, nil
}

// --- private message internals ---

// MarshalPrivateContent encodes the plaintext sealed inside a
// PrivateMessage: the content variant plus its auth data.
func MarshalPrivateContent(c domain.FramedContent, auth domain.FramedContentAuthData) []byte {
	var b cryptobyte.Builder
	switch c.ContentType {
	case domain.ContentTypeApplication:
		addOpaque32(&b, c.ApplicationData)
	case domain.ContentTypeProposal:
		addProposal(&b, *c.Proposal)
	case domain.ContentTypeCommit:
		addCommit(&b, *c.Commit)
	default:
		b.SetError(decodeErr("content type"))
	}
	addAuthData(&b, c.ContentType, auth)
	return b.BytesOrPanic()
}

// UnmarshalPrivateContent decodes a sealed private payload back into the
// variant fields and auth data.
func UnmarshalPrivateContent(data []byte, ct domain.ContentType) (domain.FramedContent, domain.FramedContentAuthData, error) {
	var c domain.FramedContent
	var auth domain.FramedContentAuthData
	c.ContentType = ct
	s := cryptobyte.String(data)
	var ok bool
	switch ct {
	case domain.ContentTypeApplication:
		ok = readOpaque32(&s, &c.ApplicationData)
	case domain.ContentTypeProposal:
		c.Proposal = &domain.Proposal{}
		ok = readProposal(&s, c.Proposal)
	case domain.ContentTypeCommit:
		c.Commit = &domain.Commit{}
		ok = readCommit(&s, c.Commit)
	}
	if !ok || !readAuthData(&s, ct, &auth) || !s.Empty() {
		return domain.FramedContent{}, domain.FramedContentAuthData{}, decodeErr("private content")
	}
	return c, auth, nil
}

// MarshalSenderData encodes the sender data sealed under the sender-data key.
func MarshalSenderData(leaf domain.LeafIndex, generation uint32, reuseGuard [4]byte) []byte {
	var b cryptobyte.Builder
	b.AddUint32(uint32(leaf))
	b.AddUint32(generation)
	b.AddBytes(reuseGuard[:])
	return b.BytesOrPanic()
}

// UnmarshalSenderData decodes sealed sender data.
func UnmarshalSenderData(data []byte) (leaf domain.LeafIndex, generation uint32, reuseGuard [4]byte, err error) {
	s := cryptobyte.String(data)
	var l uint32
	if !s.ReadUint32(&l) || !s.ReadUint32(&generation) || !s.CopyBytes(reuseGuard[:]) || !s.Empty() {
		return 0, 0, reuseGuard, decodeErr("sender data")
	}
	return domain.LeafIndex(l), generation, reuseGuard, nil
}

// PrivateMessageAAD is the additional data bound to both the sender data and
// content encryptions.
func PrivateMessageAAD(gid domain.GroupID, epoch domain.Epoch, ct domain.ContentType, authenticatedData []byte) []byte {
	var b cryptobyte.Builder
	addOpaque8(&b, gid)
	b.AddUint64(uint64(epoch))
	b.AddUint8(uint8(ct))
	addOpaque32(&b, authenticatedData)
	return b.BytesOrPanic()
}

// MarshalPrivateMessage encodes an encrypted application message.
func MarshalPrivateMessage(m domain.PrivateMessage) []byte {
	var b cryptobyte.Builder
	addOpaque8(&b, m.GroupID)
	b.AddUint64(uint64(m.Epoch))
	b.AddUint8(uint8(m.ContentType))
	addOpaque32(&b, m.AuthenticatedData)
	addOpaque16(&b, m.EncryptedSenderData)
	addOpaque32(&b, m.Ciphertext)
	return b.BytesOrPanic()
}

func readPrivateMessage(s *cryptobyte.String, m *domain.PrivateMessage) bool {
	var gid []byte
	var epoch uint64
	var ct uint8
	ok := readOpaque8(s, &gid) &&
		s.ReadUint64(&epoch) &&
		s.ReadUint8(&ct) &&
		readOpaque32(s, &m.AuthenticatedData) &&
		readOpaque16(s, &m.EncryptedSenderData) &&
		readOpaque32(s, &m.Ciphertext)
	if !ok {
		return false
	}
	m.GroupID = gid
	m.Epoch = domain.Epoch(epoch)
	m.ContentType = domain.ContentType(ct)
	return true
}

// UnmarshalPrivateMessage decodes an encrypted application message.
func UnmarshalPrivateMessage(data []byte) (domain.PrivateMessage, error) {
	var m domain.PrivateMessage
	s := cryptobyte.String(data)
	if !readPrivateMessage(&s, &m) || !s.Empty() {
		return domain.PrivateMessage{}, decodeErr("private message")
	}
	return m, nil
}

// --- transcript inputs ---

// ConfirmedTranscriptHashInput is the commit's contribution to the confirmed
// transcript hash.
func ConfirmedTranscriptHashInput(wf domain.WireFormat, c domain.FramedContent, signature []byte) []byte {
	var b cryptobyte.Builder
	b.AddUint16(uint16(wf))
	addFramedContent(&b, c)
	addOpaque16(&b, signature)
	return b.BytesOrPanic()
}

// InterimTranscriptHashInput is the confirmation tag's contribution to the
// interim transcript hash.
func InterimTranscriptHashInput(confirmationTag []byte) []byte {
	var b cryptobyte.Builder
	addOpaque8(&b, confirmationTag)
	return b.BytesOrPanic()
}

// --- top-level envelope ---

// MarshalMLSMessage encodes the top-level envelope.
func MarshalMLSMessage(m domain.MLSMessage) []byte {
	var b cryptobyte.Builder
	b.AddUint16(uint16(m.Version))
	b.AddUint16(uint16(m.WireFormat))
	switch m.WireFormat {
	case domain.WireFormatPublicMessage:
		addFramedContent(&b, m.PublicMessage.Content)
		addAuthData(&b, m.PublicMessage.Content.ContentType, m.PublicMessage.Auth)
		addOpaque8(&b, m.PublicMessage.MembershipTag)
	case domain.WireFormatPrivateMessage:
		b.AddBytes(MarshalPrivateMessage(*m.PrivateMessage))
	case domain.WireFormatWelcome:
		addWelcome(&b, *m.Welcome)
	case domain.WireFormatKeyPackage:
		addKeyPackageFull(&b, *m.KeyPackage)
	default:
		b.SetError(decodeErr("wire format"))
	}
	return b.BytesOrPanic()
}

// UnmarshalMLSMessage decodes the top-level envelope.
func UnmarshalMLSMessage(data []byte) (domain.MLSMessage, error) {
	var m domain.MLSMessage
	s := cryptobyte.String(data)
	var version, wf uint16
	if !s.ReadUint16(&version) || !s.ReadUint16(&wf) {
		return domain.MLSMessage{}, decodeErr("message header")
	}
	m.Version = domain.ProtocolVersion(version)
	m.WireFormat = domain.WireFormat(wf)
	if m.Version != domain.MLS10 {
		return domain.MLSMessage{}, decodeErr("protocol version")
	}
	var ok bool
	switch m.WireFormat {
	case domain.WireFormatPublicMessage:
		m.PublicMessage = &domain.PublicMessage{}
		ok = readPublicMessage(&s, m.PublicMessage)
	case domain.WireFormatPrivateMessage:
		m.PrivateMessage = &domain.PrivateMessage{}
		ok = readPrivateMessage(&s, m.PrivateMessage)
	case domain.WireFormatWelcome:
		m.Welcome = &domain.Welcome{}
		ok = readWelcome(&s, m.Welcome)
	case domain.WireFormatKeyPackage:
		m.KeyPackage = &domain.KeyPackage{}
		ok = readKeyPackage(&s, m.KeyPackage)
	}
	if !ok || !s.Empty() {
		return domain.MLSMessage{}, decodeErr("message body")
	}
	return m, nil
}
