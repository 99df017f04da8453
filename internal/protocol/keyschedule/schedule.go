package keyschedule

import (
	"crypto/rand"

	"meld/internal/crypto"
)

// EpochSecrets holds every secret derived for one epoch. InitSecret seeds
// the next epoch's derivation; the rest serve this epoch only.
type EpochSecrets struct {
	JoinerSecret  []byte `json:"joiner_secret"`
	WelcomeSecret []byte `json:"welcome_secret"`

	InitSecret         []byte `json:"init_secret"`
	SenderDataSecret   []byte `json:"sender_data_secret"`
	EncryptionSecret   []byte `json:"encryption_secret"`
	ExporterSecret     []byte `json:"exporter_secret"`
	ExternalSecret     []byte `json:"external_secret"`
	ConfirmationKey    []byte `json:"confirmation_key"`
	MembershipKey      []byte `json:"membership_key"`
	ResumptionSecret   []byte `json:"resumption_secret"`
	EpochAuthenticator []byte `json:"epoch_authenticator"`
}

// ZeroCommitSecret is the commit secret of a commit without an update path.
func ZeroCommitSecret() []byte { return make([]byte, crypto.SecretSize) }

// RandomInitSecret seeds epoch 0 at group creation.
func RandomInitSecret() ([]byte, error) {
	s := make([]byte, crypto.SecretSize)
	if _, err := rand.Read(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Derive advances the key schedule across a commit: the previous epoch's
// init secret and the commit secret produce the joiner secret bound to the
// new group context, then every epoch key.
func Derive(prevInit, commitSecret, pskSecret, groupContext []byte) *EpochSecrets {
	preJoiner := crypto.ExtractSecret(prevInit, commitSecret)
	joiner := crypto.ExpandWithLabel(preJoiner, "joiner", groupContext, crypto.SecretSize)
	return FromJoiner(joiner, pskSecret, groupContext)
}

// FromJoiner derives the epoch secrets from a joiner secret. Welcome
// processing enters the schedule here.
func FromJoiner(joiner, pskSecret, groupContext []byte) *EpochSecrets {
	if pskSecret == nil {
		pskSecret = make([]byte, crypto.SecretSize)
	}
	member := crypto.ExtractSecret(joiner, pskSecret)
	epoch := crypto.ExpandWithLabel(member, "epoch", groupContext, crypto.SecretSize)

	return &EpochSecrets{
		JoinerSecret:  joiner,
		WelcomeSecret: crypto.DeriveSecret(member, "welcome"),

		InitSecret:         crypto.DeriveSecret(epoch, "init"),
		SenderDataSecret:   crypto.DeriveSecret(epoch, "sender data"),
		EncryptionSecret:   crypto.DeriveSecret(epoch, "encryption"),
		ExporterSecret:     crypto.DeriveSecret(epoch, "exporter"),
		ExternalSecret:     crypto.DeriveSecret(epoch, "external"),
		ConfirmationKey:    crypto.DeriveSecret(epoch, "confirm"),
		MembershipKey:      crypto.DeriveSecret(epoch, "membership"),
		ResumptionSecret:   crypto.DeriveSecret(epoch, "resumption"),
		EpochAuthenticator: crypto.DeriveSecret(epoch, "authentication"),
	}
}

// WelcomeSecretFromJoiner derives only the welcome secret. Joiners need it
// before they know the group context the rest of the schedule binds to.
func WelcomeSecretFromJoiner(joiner, pskSecret []byte) []byte {
	if pskSecret == nil {
		pskSecret = make([]byte, crypto.SecretSize)
	}
	member := crypto.ExtractSecret(joiner, pskSecret)
	return crypto.DeriveSecret(member, "welcome")
}

// WelcomeKeyNonce derives the AEAD key and nonce protecting a welcome's
// group info.
func WelcomeKeyNonce(welcomeSecret []byte) (key, nonce []byte) {
	key = crypto.ExpandWithLabel(welcomeSecret, "key", nil, crypto.AEADKeySize)
	nonce = crypto.ExpandWithLabel(welcomeSecret, "nonce", nil, crypto.AEADNonceSize)
	return key, nonce
}

// PSKSecret folds external pre-shared keys into one key schedule input.
// With no PSKs in play it returns nil, which FromJoiner treats as all-zero.
func PSKSecret(psks [][]byte) []byte {
	if len(psks) == 0 {
		return nil
	}
	secret := make([]byte, crypto.SecretSize)
	for _, psk := range psks {
		secret = crypto.ExtractSecret(secret, psk)
	}
	return secret
}

// Exporter derives an application-chosen secret from the epoch's exporter
// secret, bound to a label and context.
func (s *EpochSecrets) Exporter(label string, context []byte, length uint16) []byte {
	derived := crypto.DeriveSecret(s.ExporterSecret, label)
	return crypto.ExpandWithLabel(derived, "exported", crypto.Hash(context), length)
}

// ConfirmationTag computes the MAC over the confirmed transcript hash that
// every commit must carry.
func (s *EpochSecrets) ConfirmationTag(confirmedTranscriptHash []byte) []byte {
	return crypto.HMAC(s.ConfirmationKey, confirmedTranscriptHash)
}
