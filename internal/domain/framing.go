package domain

// ContentType discriminates what a framed message carries.
type ContentType uint8

const (
	ContentTypeApplication ContentType = 1
	ContentTypeProposal    ContentType = 2
	ContentTypeCommit      ContentType = 3
)

// SenderType discriminates message senders. Only members send in this
// implementation; external senders are out of scope.
type SenderType uint8

const SenderTypeMember SenderType = 1

// Sender identifies who authored a framed message.
type Sender struct {
	Type      SenderType `json:"type"`
	LeafIndex LeafIndex  `json:"leaf_index"`
}

// FramedContent is the signed body of every group message. Exactly one of
// ApplicationData, Proposal and Commit is set, matching ContentType.
type FramedContent struct {
	GroupID           GroupID     `json:"group_id"`
	Epoch             Epoch       `json:"epoch"`
	Sender            Sender      `json:"sender"`
	AuthenticatedData []byte      `json:"authenticated_data,omitempty"`
	ContentType       ContentType `json:"content_type"`
	ApplicationData   []byte      `json:"application_data,omitempty"`
	Proposal          *Proposal   `json:"proposal,omitempty"`
	Commit            *Commit     `json:"commit,omitempty"`
}

// FramedContentAuthData authenticates FramedContent: the sender's signature
// over the TBS encoding and, for commits only, the confirmation tag binding
// the new epoch's transcript.
type FramedContentAuthData struct {
	Signature       []byte `json:"signature"`
	ConfirmationTag []byte `json:"confirmation_tag,omitempty"`
}

// PublicMessage is the unencrypted framing used for handshake traffic.
// MembershipTag is an HMAC under the epoch's membership key proving the
// sender held the group state.
type PublicMessage struct {
	Content       FramedContent         `json:"content"`
	Auth          FramedContentAuthData `json:"auth"`
	MembershipTag []byte                `json:"membership_tag"`
}

// PrivateMessage is the encrypted framing used for application traffic.
// SenderData hides the sender's leaf and chain generation under a key
// derived from the ciphertext itself.
type PrivateMessage struct {
	GroupID             GroupID     `json:"group_id"`
	Epoch               Epoch       `json:"epoch"`
	ContentType         ContentType `json:"content_type"`
	AuthenticatedData   []byte      `json:"authenticated_data,omitempty"`
	EncryptedSenderData []byte      `json:"encrypted_sender_data"`
	Ciphertext          []byte      `json:"ciphertext"`
}

// WireFormat tags the top-level MLSMessage variant.
type WireFormat uint16

const (
	WireFormatPublicMessage  WireFormat = 1
	WireFormatPrivateMessage WireFormat = 2
	WireFormatWelcome        WireFormat = 3
	WireFormatKeyPackage     WireFormat = 5
)

// MLSMessage is the top-level envelope exchanged through the delivery
// service. Exactly one variant pointer matching WireFormat is non-nil.
type MLSMessage struct {
	Version        ProtocolVersion `json:"version"`
	WireFormat     WireFormat      `json:"wire_format"`
	PublicMessage  *PublicMessage  `json:"public_message,omitempty"`
	PrivateMessage *PrivateMessage `json:"private_message,omitempty"`
	Welcome        *Welcome        `json:"welcome,omitempty"`
	KeyPackage     *KeyPackage     `json:"key_package,omitempty"`
}
