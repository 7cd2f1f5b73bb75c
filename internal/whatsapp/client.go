// Copyright 2026 The Whatsgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package whatsapp talks to the WhatsApp Business Graph API and models the
// inbound webhook payload.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://graph.facebook.com"
	DefaultVersion = "v21.0"
	DefaultTimeout = 10 * time.Second

	// maxErrorBody bounds how much of a failed response is kept
	maxErrorBody = 64 << 10
)

// Config configures a Graph API client
type Config struct {
	BaseURL string
	Version string
	Timeout time.Duration

	// RPS and Burst cap outbound calls across all tenants; zero disables
	RPS   float64
	Burst int

	// Transport overrides the underlying round tripper (tests)
	Transport http.RoundTripper
}

// Client is a thin Graph API client shared by every tenant. Tokens are
// passed per call so one client serves all tenants.
type Client struct {
	baseURL string
	version string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Graph API client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		version: strings.Trim(cfg.Version, "/"),
		timeout: cfg.Timeout,
		http: &http.Client{
			Transport: otelhttp.NewTransport(base),
			Timeout:   cfg.Timeout,
		},
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RPS) + 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return c
}

// PhoneNumber is the metadata of a business phone number
type PhoneNumber struct {
	ID                     string `json:"id"`
	DisplayPhoneNumber     string `json:"display_phone_number"`
	VerifiedName           string `json:"verified_name"`
	QualityRating          string `json:"quality_rating"`
	CodeVerificationStatus string `json:"code_verification_status"`
	NameStatus             string `json:"name_status"`
}

// BusinessAccount is the metadata of a WhatsApp Business Account
type BusinessAccount struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Currency             string `json:"currency"`
	TimezoneID           string `json:"timezone_id"`
	MessageTemplateNS    string `json:"message_template_namespace"`
	AccountReviewStatus  string `json:"account_review_status"`
	BusinessVerification string `json:"business_verification_status"`
}

// MessageTemplate is one entry of a template listing
type MessageTemplate struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Category string `json:"category"`
	Language string `json:"language"`
}

// TokenInfo is the introspection data of an access token
type TokenInfo struct {
	AppID     string   `json:"app_id"`
	Type      string   `json:"type"`
	IsValid   bool     `json:"is_valid"`
	ExpiresAt int64    `json:"expires_at"`
	IssuedAt  int64    `json:"issued_at"`
	Scopes    []string `json:"scopes"`
}

// Expiry returns the token's expiry time; ok is false for tokens that never expire.
func (t TokenInfo) Expiry() (at time.Time, ok bool) {
	if t.ExpiresAt <= 0 {
		return time.Time{}, false
	}
	return time.Unix(t.ExpiresAt, 0).UTC(), true
}

// PhoneNumber fetches phone-number metadata
func (c *Client) PhoneNumber(ctx context.Context, token, phoneNumberID string) (*PhoneNumber, error) {
	q := url.Values{"fields": {"display_phone_number,verified_name,quality_rating,code_verification_status,name_status"}}
	var out PhoneNumber
	if err := c.get(ctx, token, phoneNumberID, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BusinessAccount fetches business-account metadata
func (c *Client) BusinessAccount(ctx context.Context, token, businessAccountID string) (*BusinessAccount, error) {
	q := url.Values{"fields": {"id,name,currency,timezone_id,message_template_namespace,account_review_status,business_verification_status"}}
	var out BusinessAccount
	if err := c.get(ctx, token, businessAccountID, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MessageTemplates lists up to limit message templates of a business account
func (c *Client) MessageTemplates(ctx context.Context, token, businessAccountID string, limit int) ([]MessageTemplate, error) {
	if limit <= 0 {
		limit = 1
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var out struct {
		Data []MessageTemplate `json:"data"`
	}
	if err := c.get(ctx, token, businessAccountID+"/message_templates", q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// DebugToken introspects inputToken, authorizing with accessToken
func (c *Client) DebugToken(ctx context.Context, accessToken, inputToken string) (*TokenInfo, error) {
	q := url.Values{"input_token": {inputToken}}
	var out struct {
		Data TokenInfo `json:"data"`
	}
	if err := c.get(ctx, accessToken, "debug_token", q, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) get(ctx context.Context, token, path string, query url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, strings.TrimPrefix(path, "/"))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return parseAPIError(resp.StatusCode, raw)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode graph api response: %w", err)
	}
	return nil
}
