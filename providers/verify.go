package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goliatone/go-ingest/core"
)

// HeaderHMACVerifier checks an HMAC-SHA256 signature carried in a
// request header against the raw body. Encoding selects how the header
// value is decoded: hex (default) or base64.
type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string
}

func (v HeaderHMACVerifier) Verify(req core.InboundRequest) error {
	header := strings.TrimSpace(req.Header(v.Header))
	if header == "" {
		return fmt.Errorf("providers: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("providers: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return fmt.Errorf("providers: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("providers: decode base64 signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("providers: signature verification failed")
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("providers: decode hex signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("providers: signature verification failed")
		}
	}
	return nil
}

// HeaderTokenVerifier compares a shared secret carried in a request
// header in constant time.
type HeaderTokenVerifier struct {
	Header string
	Token  string
}

func (v HeaderTokenVerifier) Verify(req core.InboundRequest) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("providers: verification token is required")
	}
	actual := strings.TrimSpace(req.Header(v.Header))
	if actual == "" {
		return fmt.Errorf("providers: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("providers: verification token mismatch")
	}
	return nil
}

// BearerVerifier compares the Authorization bearer token in constant
// time.
type BearerVerifier struct {
	Token string
}

func (v BearerVerifier) Verify(req core.InboundRequest) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("providers: bearer token is required")
	}
	header := strings.TrimSpace(req.Header("Authorization"))
	if header == "" {
		return fmt.Errorf("providers: authorization header is required")
	}
	actual := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("providers: bearer token mismatch")
	}
	return nil
}
