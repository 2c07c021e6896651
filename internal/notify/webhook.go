// Package notify posts outbound webhook pings for invite and event
// activity. Delivery (email, push) is handled by an external system behind
// the webhook; this client only hands events over.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// InviteMessage contains the fields posted when an invite is created.
type InviteMessage struct {
	StakeholderName string `json:"stakeholder_name"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	AcceptURL       string `json:"accept_url"`
	ExpiresAt       string `json:"expires_at"`
}

// Client posts webhook notifications.
type Client struct {
	httpClient *http.Client
	webhookURL string
}

// NewClient creates a webhook client. An empty webhookURL disables posting.
func NewClient(webhookURL string, timeoutMS int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		webhookURL: webhookURL,
	}
}

// Enabled reports whether a webhook URL is configured.
func (c *Client) Enabled() bool {
	return c.webhookURL != ""
}

// PostInviteCreated sends an invite-created ping. This method never returns
// errors to the caller - all failures are logged at WARN level so webhook
// trouble cannot fail the invite itself.
func (c *Client) PostInviteCreated(ctx context.Context, msg InviteMessage) {
	if !c.Enabled() {
		return
	}

	payload := struct {
		Kind   string        `json:"kind"`
		Invite InviteMessage `json:"invite"`
	}{
		Kind:   "invite.created",
		Invite: msg,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		log.Warn().
			Err(err).
			Str("email", msg.Email).
			Msg("Failed to marshal invite webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Warn().
			Err(err).
			Msg("Failed to create invite webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("email", msg.Email).
			Msg("Failed to post invite webhook")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("email", msg.Email).
			Msg("Invite webhook returned non-2xx status")
		return
	}

	log.Debug().
		Str("email", msg.Email).
		Msg("Invite webhook posted")
}
