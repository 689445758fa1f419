// Package ai calls the copywriting service that drafts follow-up messages
// for the reporter flows. The service is a plain JSON-over-HTTP endpoint.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// InactiveTenantFollowUp drafts a re-engagement message for a store that
// has not transacted recently.
func (c *Client) InactiveTenantFollowUp(ctx context.Context, storeName, adminName, businessDescription string, daysInactive int) (string, error) {
	return c.followUp(ctx, "/flows/inactive-tenant", map[string]any{
		"storeName":           storeName,
		"adminName":           adminName,
		"businessDescription": businessDescription,
		"daysInactive":        daysInactive,
	})
}

// BirthdayFollowUp drafts a birthday greeting with a discount offer.
func (c *Client) BirthdayFollowUp(ctx context.Context, customerName string, discountPercentage int, birthDate string) (string, error) {
	return c.followUp(ctx, "/flows/birthday", map[string]any{
		"customerName":       customerName,
		"discountPercentage": discountPercentage,
		"birthDate":          birthDate,
	})
}

func (c *Client) followUp(ctx context.Context, path string, payload map[string]any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ai: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return "", fmt.Errorf("ai: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ai: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		FollowUpMessage string `json:"followUpMessage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}
	if parsed.FollowUpMessage == "" {
		return "", fmt.Errorf("ai: empty follow-up message from %s", path)
	}
	return parsed.FollowUpMessage, nil
}
