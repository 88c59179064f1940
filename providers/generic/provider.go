// Package generic authenticates webhook sources that sign with an
// HMAC header, present a shared-secret header, or use a bearer token.
// Checks that are not configured on the subscription pass as no-ops;
// every configured check must pass.
package generic

import (
	"context"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/providers"
)

type Provider struct{}

func New() Provider {
	return Provider{}
}

func (Provider) Kind() core.ProviderKind {
	return core.ProviderKindGeneric
}

func (Provider) Authenticate(_ context.Context, sub core.Subscription, req core.InboundRequest) error {
	cfg := sub.Provider.Generic
	if cfg == nil {
		return nil
	}
	if cfg.SigningSecret != "" && cfg.SignatureHeader != "" {
		verifier := providers.HeaderHMACVerifier{
			Header:   cfg.SignatureHeader,
			Prefix:   cfg.SignaturePrefix,
			Secret:   cfg.SigningSecret,
			Encoding: cfg.SignatureEncoding,
		}
		if err := verifier.Verify(req); err != nil {
			return err
		}
	}
	if cfg.SecretHeader != "" && cfg.SecretValue != "" {
		verifier := providers.HeaderTokenVerifier{Header: cfg.SecretHeader, Token: cfg.SecretValue}
		if err := verifier.Verify(req); err != nil {
			return err
		}
	}
	if cfg.BearerToken != "" {
		if err := (providers.BearerVerifier{Token: cfg.BearerToken}).Verify(req); err != nil {
			return err
		}
	}
	return nil
}

func (Provider) FormatChallenge(core.InboundRequest) (core.InboundResult, bool) {
	return core.InboundResult{}, false
}

var _ providers.Capability = Provider{}
