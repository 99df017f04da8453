package wire_test

import (
	"reflect"
	"testing"

	"meld/internal/domain"
	"meld/internal/wire"
)

func testKeyPackage(seed byte) domain.KeyPackage {
	var initKey domain.HPKEPublicKey
	var sigKey domain.Ed25519Public
	for i := range initKey {
		initKey[i] = seed
		sigKey[i] = seed + 1
	}
	return domain.KeyPackage{
		Version:     domain.MLS10,
		CipherSuite: domain.CipherSuiteX25519ChaCha,
		InitKey:     initKey,
		Credential: domain.Credential{
			Identity:     []byte{'u', seed},
			SignatureKey: sigKey,
		},
		Extensions: []domain.Extension{
			{Type: domain.ExtensionLifetime, Data: wire.MarshalLifetime(domain.Lifetime{NotBefore: 1, NotAfter: 1 << 40})},
		},
		Signature: []byte{seed, seed, seed},
	}
}

func TestKeyPackageRoundTrip(t *testing.T) {
	kp := testKeyPackage(7)
	got, err := wire.UnmarshalKeyPackage(wire.MarshalKeyPackage(kp))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, kp) {
		t.Fatalf("round trip changed the key package:\n got %+v\nwant %+v", got, kp)
	}
}

func TestRatchetTreeRoundTrip(t *testing.T) {
	leaf0 := testKeyPackage(1)
	leaf2 := testKeyPackage(2)
	var parentKey domain.HPKEPublicKey
	parentKey[0] = 0xee
	nodes := []domain.RatchetTreeNode{
		{Leaf: &leaf0},
		{Parent: &domain.ParentNode{
			PublicKey:      parentKey,
			UnmergedLeaves: []domain.LeafIndex{0, 2},
		}},
		{Leaf: &leaf2},
		{},
	}

	got, err := wire.UnmarshalRatchetTree(wire.MarshalRatchetTree(nodes))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, nodes) {
		t.Fatalf("round trip changed the tree:\n got %+v\nwant %+v", got, nodes)
	}
}

func testKEMOutput(seed byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = seed
	}
	return out
}

func TestWelcomeRoundTrip(t *testing.T) {
	w := domain.Welcome{
		CipherSuite: domain.CipherSuiteX25519ChaCha,
		Secrets: []domain.EncryptedGroupSecrets{
			{
				NewMember:        domain.KeyPackageRef{1, 2, 3},
				EncryptedSecrets: domain.HPKECiphertext{KEMOutput: testKEMOutput('a'), Ciphertext: []byte("ct-a")},
			},
			{
				NewMember:        domain.KeyPackageRef{4, 5, 6},
				EncryptedSecrets: domain.HPKECiphertext{KEMOutput: testKEMOutput('b'), Ciphertext: []byte("ct-b")},
			},
		},
		EncryptedGroupInfo: []byte("sealed group info"),
	}

	got, err := wire.UnmarshalWelcome(wire.MarshalWelcome(w))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, w) {
		t.Fatalf("round trip changed the welcome:\n got %+v\nwant %+v", got, w)
	}
}

func TestCommitMessageRoundTrip(t *testing.T) {
	leafKP := testKeyPackage(9)
	pathKP := testKeyPackage(10)
	var nodeKey domain.HPKEPublicKey
	nodeKey[31] = 0x42

	m := domain.MLSMessage{
		Version:    domain.MLS10,
		WireFormat: domain.WireFormatPublicMessage,
		PublicMessage: &domain.PublicMessage{
			Content: domain.FramedContent{
				GroupID:     domain.GroupID("g"),
				Epoch:       3,
				Sender:      domain.Sender{Type: domain.SenderTypeMember, LeafIndex: 1},
				ContentType: domain.ContentTypeCommit,
				Commit: &domain.Commit{
					Proposals: []domain.ProposalOrRef{
						{
							Type: domain.ProposalOrRefProposal,
							Proposal: &domain.Proposal{
								Type: domain.ProposalTypeAdd,
								Add:  &domain.AddProposal{KeyPackage: leafKP},
							},
						},
						{
							Type:      domain.ProposalOrRefReference,
							Reference: []byte("proposal-ref"),
						},
					},
					Path: &domain.UpdatePath{
						LeafKeyPackage: pathKP,
						Nodes: []domain.UpdatePathNode{
							{
								PublicKey: nodeKey,
								EncryptedPathSecrets: []domain.HPKECiphertext{
									{KEMOutput: testKEMOutput('1'), Ciphertext: []byte("ct-1")},
									{KEMOutput: testKEMOutput('2'), Ciphertext: []byte("ct-2")},
								},
							},
						},
					},
				},
			},
			Auth: domain.FramedContentAuthData{
				Signature:       []byte("sig"),
				ConfirmationTag: []byte("conf"),
			},
			MembershipTag: []byte("memb"),
		},
	}

	got, err := wire.UnmarshalMLSMessage(wire.MarshalMLSMessage(m))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("round trip changed the commit message:\n got %+v\nwant %+v", got, m)
	}
}
