package delivery_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"meld/internal/delivery"
	"meld/internal/domain"
)

func newTestClient(t *testing.T) *delivery.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(delivery.NewServer(zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return delivery.NewHTTP(srv.URL, nil)
}

func TestKeyPackagePublishClaim(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	// Claiming before publishing fails.
	if _, err := c.ClaimKeyPackage(ctx, "bob"); err == nil {
		t.Fatal("claim with none published succeeded")
	}

	pkgs := [][]byte{[]byte("kp-1"), []byte("kp-2")}
	if err := c.PublishKeyPackages(ctx, "bob", pkgs); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Claims drain in order, one package each.
	for _, want := range pkgs {
		got, err := c.ClaimKeyPackage(ctx, "bob")
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("claimed %q, want %q", got, want)
		}
	}
	if _, err := c.ClaimKeyPackage(ctx, "bob"); err == nil {
		t.Fatal("claim after drain succeeded")
	}
}

func TestGroupMessageSequencing(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	gid := domain.GroupID{0xab, 0xcd}

	for i, m := range [][]byte{[]byte("one"), []byte("two"), []byte("three")} {
		seq, err := c.PostGroupMessage(ctx, gid, m)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		if seq != uint64(i+1) {
			t.Fatalf("seq = %d, want %d", seq, i+1)
		}
	}

	msgs, err := c.FetchGroupMessages(ctx, gid, 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Seq != 2 || string(msgs[1].Message) != "three" {
		t.Fatalf("fetch after 1: %+v", msgs)
	}

	// Another group's sequence is independent.
	seq, err := c.PostGroupMessage(ctx, domain.GroupID{0x01}, []byte("x"))
	if err != nil || seq != 1 {
		t.Fatalf("independent group seq = %d, err %v", seq, err)
	}
}

func TestWelcomeQueue(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	for _, w := range []string{"w1", "w2"} {
		if err := c.PostWelcome(ctx, "carol", []byte(w)); err != nil {
			t.Fatalf("post welcome: %v", err)
		}
	}

	got, err := c.FetchWelcomes(ctx, "carol")
	if err != nil || len(got) != 2 {
		t.Fatalf("fetch welcomes: %v %v", got, err)
	}

	if err := c.AckWelcomes(ctx, "carol", 1); err != nil {
		t.Fatalf("ack: %v", err)
	}
	got, err = c.FetchWelcomes(ctx, "carol")
	if err != nil || len(got) != 1 || string(got[0]) != "w2" {
		t.Fatalf("after ack: %v %v", got, err)
	}

	// A negative count is rejected and leaves the queue alone.
	if err := c.AckWelcomes(ctx, "carol", -1); err == nil {
		t.Fatal("negative ack count accepted")
	}
	got, err = c.FetchWelcomes(ctx, "carol")
	if err != nil || len(got) != 1 {
		t.Fatalf("after rejected ack: %v %v", got, err)
	}
}
