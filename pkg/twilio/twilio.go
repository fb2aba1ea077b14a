package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	defaultBaseURL       = "https://api.twilio.com"
	maxResponseSizeBytes = 1 << 20
)

type Config struct {
	AccountSID     string        `envconfig:"ACCOUNT_SID" split_words:"true" required:"true"`
	AuthToken      string        `envconfig:"AUTH_TOKEN" split_words:"true" required:"true"`
	WhatsAppNumber string        `envconfig:"WHATSAPP_NUMBER" split_words:"true" required:"true"`
	BaseURL        string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.twilio.com"`
	Timeout        time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client sends outbound WhatsApp messages through the Twilio REST API and
// validates inbound webhook signatures.
type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
}

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	accountSID := strings.TrimSpace(cfg.AccountSID)
	if accountSID == "" {
		return nil, errors.New("twilio account sid is required")
	}
	authToken := strings.TrimSpace(cfg.AuthToken)
	if authToken == "" {
		return nil, errors.New("twilio auth token is required")
	}
	from := strings.TrimSpace(cfg.WhatsAppNumber)
	if from == "" {
		return nil, errors.New("twilio whatsapp number is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid twilio base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    baseURL,
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type messageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SendMessage delivers body to the recipient from the configured WhatsApp
// number and returns the message SID.
func (c *Client) SendMessage(ctx context.Context, to, body string) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return "", errors.New("recipient is empty")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute twilio request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return "", fmt.Errorf("read twilio response: %w", err)
	}

	var parsed messageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = messageResponse{}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail := strings.TrimSpace(parsed.Message)
		if detail == "" {
			detail = string(raw)
		}
		return "", fmt.Errorf("twilio http status=%d: %s", resp.StatusCode, detail)
	}
	return parsed.SID, nil
}

// ValidateSignature checks the X-Twilio-Signature header for a webhook
// request: HMAC-SHA1 over the full URL plus the form parameters appended in
// key order, base64 encoded.
func (c *Client) ValidateSignature(requestURL string, params url.Values, signature string) bool {
	if strings.TrimSpace(signature) == "" {
		return false
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(requestURL)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	mac := hmac.New(sha1.New, []byte(c.authToken))
	mac.Write([]byte(payload.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
