// Package clients validates the social platform credentials attached to an
// agent deployment.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
	"github.com/pyanoxyz/agent-generator/internal/models"
)

// Validator parses client credential JSON, checks it against the per-platform
// schema and, in live mode, authenticates against each platform.
type Validator struct {
	schemas map[string]*jsonschema.Schema
	prober  *LiveProber
}

// NewValidator creates a validator. A nil prober gives schema-only validation.
func NewValidator(prober *LiveProber) (*Validator, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("failed to compile client schemas: %w", err)
	}
	return &Validator{schemas: schemas, prober: prober}, nil
}

// Live reports whether live authentication probes are enabled
func (v *Validator) Live() bool {
	return v.prober != nil
}

// Validate parses and, in live mode, authenticates the supplied credentials
func (v *Validator) Validate(ctx context.Context, twitterJSON, discordJSON, telegramJSON string) (*models.ClientConfig, error) {
	cfg, err := v.Parse(twitterJSON, discordJSON, telegramJSON)
	if err != nil {
		return nil, err
	}
	if err := v.Authenticate(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes and schema-checks the raw JSON of each supplied platform.
// Blank inputs mean the platform is not configured.
func (v *Validator) Parse(twitterJSON, discordJSON, telegramJSON string) (*models.ClientConfig, error) {
	cfg := &models.ClientConfig{}

	if strings.TrimSpace(twitterJSON) != "" {
		cfg.Twitter = &models.TwitterCredentials{}
		if err := v.decode(models.PlatformTwitter, twitterJSON, cfg.Twitter); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(discordJSON) != "" {
		cfg.Discord = &models.DiscordCredentials{}
		if err := v.decode(models.PlatformDiscord, discordJSON, cfg.Discord); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(telegramJSON) != "" {
		cfg.Telegram = &models.TelegramCredentials{}
		if err := v.decode(models.PlatformTelegram, telegramJSON, cfg.Telegram); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Authenticate runs the live probe for every configured platform. It is a
// no-op in schema-only mode.
func (v *Validator) Authenticate(ctx context.Context, cfg *models.ClientConfig) error {
	if v.prober == nil || cfg.IsEmpty() {
		return nil
	}

	if cfg.Twitter != nil {
		if err := v.prober.ProbeTwitter(ctx, cfg.Twitter); err != nil {
			return authFailed(models.PlatformTwitter, err)
		}
	}
	if cfg.Discord != nil {
		if err := v.prober.ProbeDiscord(ctx, cfg.Discord); err != nil {
			return authFailed(models.PlatformDiscord, err)
		}
	}
	if cfg.Telegram != nil {
		if err := v.prober.ProbeTelegram(ctx, cfg.Telegram); err != nil {
			return authFailed(models.PlatformTelegram, err)
		}
	}
	return nil
}

func (v *Validator) decode(platform, raw string, out interface{}) error {
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return apperror.Wrap(apperror.InvalidClientJSON, err, "Invalid JSON for %s client", platform).
			WithDetail("platform", platform)
	}

	if err := v.schemas[platform].Validate(doc); err != nil {
		return apperror.New(apperror.InvalidClientConfig, "Invalid %s client configuration: %s", platform, describe(err)).
			WithDetail("platform", platform)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return apperror.Wrap(apperror.InvalidClientConfig, err, "Invalid %s client configuration", platform).
			WithDetail("platform", platform)
	}
	return nil
}

func authFailed(platform string, err error) error {
	return apperror.Wrap(apperror.ClientAuthenticationFailed, err, "Could not authenticate %s client", platform).
		WithDetail("platform", platform)
}

// describe flattens a schema validation error into a short sentence
func describe(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}

	leaf := verr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	location := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if location == "" {
		return leaf.Message
	}
	return location + ": " + leaf.Message
}
