// Package wa sends WhatsApp messages through the WhaCenter HTTP API and
// resolves the device/group settings the rest of the system uses.
package wa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	sendPath      = "/api/send"
	sendGroupPath = "/api/sendGroup"
)

// Client posts messages to a WhaCenter device. The API is form-encoded and
// reports failures in the JSON body rather than the HTTP status, so both
// are checked.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Send delivers a message to a direct number (digits, country prefix) or,
// when isGroup is set, to a group id.
func (c *Client) Send(ctx context.Context, deviceID, to, message string, isGroup bool) error {
	path := sendPath
	form := url.Values{}
	form.Set("device_id", deviceID)
	form.Set("message", message)
	if isGroup {
		path = sendGroupPath
		form.Set("group", to)
	} else {
		form.Set("number", to)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("wa: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("wa: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("wa: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("wa: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Status bool   `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("wa: decode response: %w", err)
	}
	if !parsed.Status {
		return fmt.Errorf("wa: provider rejected message: %s", parsed.Reason)
	}
	return nil
}
