package transcript

import (
	"bytes"
	"testing"

	"meld/internal/domain"
)

func testContent() domain.FramedContent {
	return domain.FramedContent{
		GroupID:     []byte("gid"),
		Epoch:       1,
		Sender:      domain.Sender{Type: domain.SenderTypeMember, LeafIndex: 0},
		ContentType: domain.ContentTypeCommit,
		Commit:      &domain.Commit{},
	}
}

func TestTranscriptAdvances(t *testing.T) {
	h := New()

	h1 := h.AdvanceConfirmed(domain.WireFormatPublicMessage, testContent(), []byte("sig"))
	if len(h1.Confirmed) == 0 {
		t.Fatal("confirmed hash empty after commit")
	}
	h1 = h1.AdvanceInterim([]byte("tag"))
	if len(h1.Interim) == 0 {
		t.Fatal("interim hash empty after confirmation tag")
	}

	// Same history, same hashes.
	h2 := New().AdvanceConfirmed(domain.WireFormatPublicMessage, testContent(), []byte("sig")).AdvanceInterim([]byte("tag"))
	if !bytes.Equal(h1.Confirmed, h2.Confirmed) || !bytes.Equal(h1.Interim, h2.Interim) {
		t.Fatal("identical histories produced different transcript hashes")
	}

	// Diverging signature diverges the hash.
	h3 := New().AdvanceConfirmed(domain.WireFormatPublicMessage, testContent(), []byte("other"))
	if bytes.Equal(h1.Confirmed, h3.Confirmed) {
		t.Fatal("different signatures produced the same confirmed hash")
	}
}
