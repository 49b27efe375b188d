package hosttoken

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	host, err := issuer.Issue("s1", "", RoleHost)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.Verify(host, "s1", RoleHost)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.SessionID != "s1" || claims.Role != RoleHost {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	player, _ := issuer.Issue("s1", "p1", RolePlayer)
	if _, err := issuer.Verify(player, "s1", RoleHost); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected player token rejected for host action, got %v", err)
	}
	claims, err = issuer.Verify(player, "s1", RolePlayer)
	if err != nil || claims.Subject != "p1" {
		t.Fatalf("expected player subject, got %+v %v", claims, err)
	}
	if _, err := issuer.Verify(host, "s2", RoleHost); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected token for another session rejected, got %v", err)
	}
}

func TestVerifyRejectsTamperedAndExpired(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Minute)
	token, _ := issuer.Issue("s1", "", RoleHost)

	other := NewIssuer("other-secret", time.Minute)
	if _, err := other.Verify(token, "s1", RoleHost); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := issuer.Verify(token, "s1", RoleHost); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}

	if _, err := issuer.Verify("not-a-token", "s1", RoleHost); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected garbage rejected, got %v", err)
	}
}
