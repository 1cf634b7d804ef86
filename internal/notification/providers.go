package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"sync"
	"time"
)

// Provider delivers a notification over one channel
type Provider interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// WebhookProvider POSTs notifications as JSON to a configured endpoint
type WebhookProvider struct {
	url    string
	client *http.Client
}

// NewWebhookProvider creates a webhook provider
func NewWebhookProvider(url string) *WebhookProvider {
	return &WebhookProvider{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *WebhookProvider) Name() string { return "webhook" }

func (p *WebhookProvider) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// EmailProvider delivers notifications over SMTP. Recipient addresses are
// derived as <recipient id>@<the configured sender's domain> by an upstream
// directory in production; here the recipient id is used as the address
// local part directly.
type EmailProvider struct {
	addr string
	from string
}

// NewEmailProvider creates an SMTP provider
func NewEmailProvider(addr, from string) *EmailProvider {
	return &EmailProvider{addr: addr, from: from}
}

func (p *EmailProvider) Name() string { return "email" }

func (p *EmailProvider) Send(_ context.Context, n Notification) error {
	to := make([]string, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		to = append(to, r.ID.String())
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", p.from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", n.Subject)
	fmt.Fprintf(&msg, "\r\n%s\r\n", n.Body)

	if err := smtp.SendMail(p.addr, nil, p.from, to, msg.Bytes()); err != nil {
		return fmt.Errorf("smtp delivery failed: %w", err)
	}

	return nil
}

// MockProvider records notifications for tests
type MockProvider struct {
	mu   sync.Mutex
	sent []Notification
	fail bool
}

// NewMockProvider creates a mock provider
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Send(_ context.Context, n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail {
		return fmt.Errorf("mock provider failure")
	}

	p.sent = append(p.sent, n)
	return nil
}

// Sent returns a copy of everything delivered so far
func (p *MockProvider) Sent() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Notification, len(p.sent))
	copy(out, p.sent)
	return out
}

// SetFail makes subsequent sends fail
func (p *MockProvider) SetFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}
