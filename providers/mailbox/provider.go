package mailbox

import (
	"context"
	"strings"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/providers"
)

// Provider is the push-side capability for mailbox subscriptions:
// relay notifications authenticate with a shared-secret header. The
// mailbox API has no handshake challenge.
type Provider struct{}

func NewProvider() Provider {
	return Provider{}
}

func (Provider) Kind() core.ProviderKind {
	return core.ProviderKindMailbox
}

func (Provider) Authenticate(_ context.Context, sub core.Subscription, req core.InboundRequest) error {
	cfg := sub.Provider.Mailbox
	if cfg == nil {
		return nil
	}
	if strings.TrimSpace(cfg.SharedSecretHeader) == "" || strings.TrimSpace(cfg.SharedSecret) == "" {
		return nil
	}
	verifier := providers.HeaderTokenVerifier{
		Header: cfg.SharedSecretHeader,
		Token:  cfg.SharedSecret,
	}
	return verifier.Verify(req)
}

func (Provider) FormatChallenge(core.InboundRequest) (core.InboundResult, bool) {
	return core.InboundResult{}, false
}

var _ providers.Capability = Provider{}
