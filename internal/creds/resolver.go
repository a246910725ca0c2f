// Package creds resolves per-call integration credentials without touching
// process-wide state. Lookup order: the session's credential dictionary
// (unified key names), the session's legacy extra-parameter dictionary, and —
// only for allowlisted integrations — the process environment.
package creds

import (
	"os"
	"strings"

	"taskhive/internal/logging"
)

// Source provides a session's request-scoped credential dictionaries.
type Source interface {
	Creds(integration string) map[string]string
	ExtraParams(integration string) map[string]string
}

// envFallback maps integrations allowed to fall back to the process
// environment: integration -> unified key -> env var name.
var envFallback = map[string]map[string]string{
	"twitter": {
		"access_token":        "TWITTER_ACCESS_TOKEN",
		"access_token_secret": "TWITTER_ACCESS_TOKEN_SECRET",
		"consumer_key":        "TWITTER_CONSUMER_KEY",
		"consumer_secret":     "TWITTER_CONSUMER_SECRET",
	},
	"linkedin": {
		"access_token": "LINKEDIN_ACCESS_TOKEN",
	},
	"slack": {
		"bot_token":  "SLACK_BOT_TOKEN",
		"user_token": "SLACK_USER_TOKEN",
	},
	"reddit": {
		"client_id":     "REDDIT_CLIENT_ID",
		"client_secret": "REDDIT_CLIENT_SECRET",
		"user_agent":    "REDDIT_USER_AGENT",
	},
	"whatsapp": {
		"access_token":    "WHATSAPP_ACCESS_TOKEN",
		"phone_number_id": "WHATSAPP_PHONE_NUMBER_ID",
	},
	"lark": {
		"app_id":     "LARK_APP_ID",
		"app_secret": "LARK_APP_SECRET",
	},
}

// Resolver performs credential lookups. The environment accessor is
// injectable for tests.
type Resolver struct {
	getenv func(string) string
	logger logging.Logger
}

// NewResolver creates a resolver reading the real process environment.
func NewResolver(logger logging.Logger) *Resolver {
	return &Resolver{
		getenv: os.Getenv,
		logger: logging.OrNop(logger),
	}
}

// NewResolverWithEnv creates a resolver with a custom environment accessor.
func NewResolverWithEnv(getenv func(string) string, logger logging.Logger) *Resolver {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &Resolver{
		getenv: getenv,
		logger: logging.OrNop(logger),
	}
}

// Lookup returns the credential value for one unified key. A missing value is
// reported via ok=false and is never an error: the integration is simply
// omitted from the available toolset.
func (r *Resolver) Lookup(src Source, integration, key string) (string, bool) {
	if src != nil {
		if v := nonEmpty(src.Creds(integration)[key]); v != "" {
			return v, true
		}
		if v := nonEmpty(src.ExtraParams(integration)[key]); v != "" {
			return v, true
		}
	}
	if envVar, ok := envFallback[integration][key]; ok {
		if v := nonEmpty(r.getenv(envVar)); v != "" {
			r.logger.Debug("credential %s/%s resolved from process environment", integration, key)
			return v, true
		}
	}
	return "", false
}

// LookupAny returns the first present value among unified or legacy key
// names for an integration.
func (r *Resolver) LookupAny(src Source, integration string, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := r.Lookup(src, integration, key); ok {
			return v, true
		}
	}
	return "", false
}

func nonEmpty(v string) string {
	return strings.TrimSpace(v)
}
