package credentials

import (
	"testing"
	"time"
)

func TestVerificationToken_RoundTrip(t *testing.T) {
	issuer := NewVerificationIssuer("secret-1")

	token, err := issuer.IssueVerificationToken("sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := issuer.VerifyVerificationToken(token, "sub-1"); err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
}

func TestVerificationToken_WrongSubscriptionRejected(t *testing.T) {
	issuer := NewVerificationIssuer("secret-1")
	token, err := issuer.IssueVerificationToken("sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := issuer.VerifyVerificationToken(token, "sub-2"); err == nil {
		t.Fatal("expected subscription binding rejection")
	}
}

func TestVerificationToken_TamperedSignatureRejected(t *testing.T) {
	issuer := NewVerificationIssuer("secret-1")
	token, err := issuer.IssueVerificationToken("sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other := NewVerificationIssuer("secret-2")
	if err := other.VerifyVerificationToken(token, "sub-1"); err == nil {
		t.Fatal("expected signature rejection")
	}
}

func TestVerificationToken_ExpiryEnforced(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewVerificationIssuer("secret-1")
	issuer.TTL = time.Minute
	issuer.Now = func() time.Time { return current }

	token, err := issuer.IssueVerificationToken("sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if err := issuer.VerifyVerificationToken(token, "sub-1"); err == nil {
		t.Fatal("expected expiry rejection")
	}
}

func TestVerificationToken_IssuerAudienceChecked(t *testing.T) {
	minting := NewVerificationIssuer("secret-1")
	minting.Issuer = "other-service"
	token, err := minting.IssueVerificationToken("sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	verifying := NewVerificationIssuer("secret-1")
	if err := verifying.VerifyVerificationToken(token, "sub-1"); err == nil {
		t.Fatal("expected issuer mismatch rejection")
	}
}

func TestVerificationToken_MalformedRejected(t *testing.T) {
	issuer := NewVerificationIssuer("secret-1")
	if err := issuer.VerifyVerificationToken("not-a-token", "sub-1"); err == nil {
		t.Fatal("expected malformed token rejection")
	}
}
