package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kabilan-0809/chat-application/internal/identity"
)

func newTestService(t *testing.T, opts ...Option) (*Service, identity.Identity) {
	t.Helper()

	idStore := identity.NewInMemoryStore()
	ident, err := idStore.UpsertByProvider(context.Background(), time.Now().UTC(), identity.Profile{
		ProviderID:  "google-1",
		DisplayName: "Alice",
		Email:       "alice@example.com",
	})
	if err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	return NewService(testLogger(), NewInMemoryStore(), idStore, opts...), ident
}

func TestService_IssueThenValidate(t *testing.T) {
	t.Parallel()

	svc, ident := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, time.Now().UTC(), ident.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Token == "" || issued.SessionID == "" {
		t.Fatalf("expected token and session id, got %+v", issued)
	}

	got, err := svc.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.ID != ident.ID || got.DisplayName != "Alice" {
		t.Fatalf("wrong identity: %+v", got)
	}
}

func TestService_Validate_UnknownCredential(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	for _, cred := range []string{"", "   ", "never-issued"} {
		if _, err := svc.Validate(context.Background(), cred); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("validate(%q): expected ErrUnauthenticated, got %v", cred, err)
		}
	}
}

func TestService_Validate_Expired(t *testing.T) {
	t.Parallel()

	svc, ident := newTestService(t, WithTTL(time.Minute))
	ctx := context.Background()

	// Issue far enough in the past that the TTL has lapsed.
	issued, err := svc.Issue(ctx, time.Now().UTC().Add(-time.Hour), ident.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := svc.Validate(ctx, issued.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := svc.Validate(ctx, issued.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expired must also match ErrUnauthenticated")
	}
}

func TestService_Validate_Revoked(t *testing.T) {
	t.Parallel()

	svc, ident := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, time.Now().UTC(), ident.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.Revoke(ctx, time.Now().UTC(), issued.SessionID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if _, err := svc.Validate(ctx, issued.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestService_Lookup(t *testing.T) {
	t.Parallel()

	svc, ident := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, time.Now().UTC(), ident.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	row, err := svc.Lookup(ctx, issued.Token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if row.ID != issued.SessionID || row.IdentityID != ident.ID {
		t.Fatalf("unexpected row: %+v", row)
	}

	if _, err := svc.Lookup(ctx, "bogus"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestNewOpaqueToken_HashIsDeterministic(t *testing.T) {
	t.Parallel()

	plain, hash, err := newOpaqueToken(0)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if plain == "" || hash == "" {
		t.Fatalf("expected non-empty token parts")
	}
	if hashTokenHex(plain) != hash {
		t.Fatalf("hash must be derived from the plain token")
	}
}
