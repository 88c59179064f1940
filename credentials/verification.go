package credentials

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"
)

const (
	verificationIssuer   = "go-ingest"
	verificationAudience = "ingest-verification"

	defaultVerificationTTL = 10 * time.Minute
)

// VerificationIssuer mints and checks the signed, time-limited tokens
// that bind a subscription id to a fixed issuer and audience pair.
// Used by the diagnostic path to prove a caller controls a
// subscription without touching provider credentials.
type VerificationIssuer struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      core.Clock
}

func NewVerificationIssuer(secret string) *VerificationIssuer {
	return &VerificationIssuer{
		Secret:   secret,
		Issuer:   verificationIssuer,
		Audience: verificationAudience,
		TTL:      defaultVerificationTTL,
	}
}

type verificationClaims struct {
	Issuer         string `json:"iss"`
	Audience       string `json:"aud"`
	SubscriptionID string `json:"sub"`
	IssuedAt       int64  `json:"iat"`
	ExpiresAt      int64  `json:"exp"`
}

// IssueVerificationToken mints an HS256 token for the subscription.
func (v *VerificationIssuer) IssueVerificationToken(subscriptionID string) (string, error) {
	if v == nil {
		return "", fmt.Errorf("credentials: verification issuer is nil")
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return "", fmt.Errorf("credentials: verification secret is required")
	}
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return "", fmt.Errorf("credentials: subscription id is required")
	}

	now := core.ResolveClock(v.Now)()
	claims := verificationClaims{
		Issuer:         v.issuer(),
		Audience:       v.audience(),
		SubscriptionID: subscriptionID,
		IssuedAt:       now.Unix(),
		ExpiresAt:      now.Add(v.ttl()).Unix(),
	}

	headerRaw, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", fmt.Errorf("credentials: marshal token header: %w", err)
	}
	claimsRaw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("credentials: marshal token claims: %w", err)
	}

	signed := base64.RawURLEncoding.EncodeToString(headerRaw) + "." + base64.RawURLEncoding.EncodeToString(claimsRaw)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return signed + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// VerifyVerificationToken checks signature, issuer, audience, expiry,
// and that the token binds the expected subscription id.
func (v *VerificationIssuer) VerifyVerificationToken(token string, subscriptionID string) error {
	if v == nil {
		return fmt.Errorf("credentials: verification issuer is nil")
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("credentials: verification secret is required")
	}

	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return fmt.Errorf("credentials: malformed verification token")
	}
	signed := parts[0] + "." + parts[1]
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("credentials: decode token signature: %w", err)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return fmt.Errorf("credentials: verification token signature mismatch")
	}

	claimsRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("credentials: decode token claims: %w", err)
	}
	var claims verificationClaims
	if err := json.Unmarshal(claimsRaw, &claims); err != nil {
		return fmt.Errorf("credentials: parse token claims: %w", err)
	}

	if claims.Issuer != v.issuer() {
		return fmt.Errorf("credentials: verification token issuer mismatch")
	}
	if claims.Audience != v.audience() {
		return fmt.Errorf("credentials: verification token audience mismatch")
	}
	if claims.SubscriptionID != strings.TrimSpace(subscriptionID) {
		return fmt.Errorf("credentials: verification token bound to a different subscription")
	}
	now := core.ResolveClock(v.Now)()
	if claims.ExpiresAt <= now.Unix() {
		return fmt.Errorf("credentials: verification token expired")
	}
	return nil
}

func (v *VerificationIssuer) issuer() string {
	if v != nil && strings.TrimSpace(v.Issuer) != "" {
		return strings.TrimSpace(v.Issuer)
	}
	return verificationIssuer
}

func (v *VerificationIssuer) audience() string {
	if v != nil && strings.TrimSpace(v.Audience) != "" {
		return strings.TrimSpace(v.Audience)
	}
	return verificationAudience
}

func (v *VerificationIssuer) ttl() time.Duration {
	if v != nil && v.TTL > 0 {
		return v.TTL
	}
	return defaultVerificationTTL
}
