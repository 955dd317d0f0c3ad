package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pyanoxyz/agent-generator/internal/models"
)

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	defaultDiscordBaseURL  = "https://discord.com"
)

// LiveProber checks credentials by calling each platform's "who am I" endpoint
type LiveProber struct {
	httpClient      *http.Client
	TelegramBaseURL string
	DiscordBaseURL  string
	// TwitterProbeURL receives the login triple
	TwitterProbeURL string
}

// NewLiveProber creates a prober with production platform endpoints
func NewLiveProber(twitterProbeURL string) *LiveProber {
	return &LiveProber{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		TelegramBaseURL: defaultTelegramBaseURL,
		DiscordBaseURL:  defaultDiscordBaseURL,
		TwitterProbeURL: twitterProbeURL,
	}
}

// ProbeTelegram calls getMe with the bot token
func (p *LiveProber) ProbeTelegram(ctx context.Context, creds *models.TelegramCredentials) error {
	url := fmt.Sprintf("%s/bot%s/getMe", strings.TrimRight(p.TelegramBaseURL, "/"), creds.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		Result      struct {
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("unexpected Telegram response (status %d)", resp.StatusCode)
	}
	if !result.OK {
		return fmt.Errorf("invalid bot token: %s", result.Description)
	}

	log.Printf("✅ [CLIENTS] Telegram bot verified: @%s", result.Result.Username)
	return nil
}

// ProbeDiscord fetches the bot's own user with the API token
func (p *LiveProber) ProbeDiscord(ctx context.Context, creds *models.DiscordCredentials) error {
	url := strings.TrimRight(p.DiscordBaseURL, "/") + "/api/v10/users/@me"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+creds.APIToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Discord: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Discord returned status %d", resp.StatusCode)
	}

	var me struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return fmt.Errorf("unexpected Discord response: %w", err)
	}
	if me.ID != "" && me.ID != creds.ApplicationID {
		log.Printf("⚠️  [CLIENTS] Discord token user %s differs from application id %s", me.ID, creds.ApplicationID)
	}

	log.Printf("✅ [CLIENTS] Discord bot verified: %s", me.Username)
	return nil
}

// ProbeTwitter posts the login triple to the configured login-check service
func (p *LiveProber) ProbeTwitter(ctx context.Context, creds *models.TwitterCredentials) error {
	if p.TwitterProbeURL == "" {
		return fmt.Errorf("no Twitter login check is configured")
	}

	body, err := json.Marshal(creds)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TwitterProbeURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Twitter login check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Twitter login check returned status %d", resp.StatusCode)
	}

	log.Printf("✅ [CLIENTS] Twitter login verified for %s", creds.Username)
	return nil
}
