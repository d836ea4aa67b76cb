package whatsappclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL       = "https://graph.facebook.com"
	defaultAPIVersion    = "v21.0"
	defaultUserAgent     = "realty-inbox/0.1"
	defaultMaxMediaBytes = 25 << 20
)

var (
	// ErrMissingAccessToken means the send and media paths cannot be used.
	ErrMissingAccessToken = errors.New("whatsappclient: access token is required")
	// ErrMediaTooLarge is returned when a download exceeds the configured cap.
	ErrMediaTooLarge = errors.New("whatsappclient: media exceeds size limit")
	// ErrInvalidSignature is returned for X-Hub-Signature-256 mismatches.
	ErrInvalidSignature = errors.New("whatsappclient: signature mismatch")
)

// Config controls how the Cloud API client behaves.
type Config struct {
	BaseURL       string
	APIVersion    string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	MaxMediaBytes int64
	HTTPClient    *http.Client
	Logger        *slog.Logger
	UserAgent     string
}

// Client wraps the WhatsApp Cloud API endpoints used by the inbox: message
// send, media lookup and media download.
type Client struct {
	accessToken   string
	baseURL       string
	phoneNumberID string
	httpClient    *http.Client
	maxRetries    int
	backoff       time.Duration
	maxMediaBytes int64
	logger        *slog.Logger
	userAgent     string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, ErrMissingAccessToken
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if version == "" {
		version = defaultAPIVersion
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	maxMedia := cfg.MaxMediaBytes
	if maxMedia <= 0 {
		maxMedia = defaultMaxMediaBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		accessToken:   cfg.AccessToken,
		baseURL:       baseURL + "/" + version,
		phoneNumberID: strings.TrimSpace(cfg.PhoneNumberID),
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		backoff:       backoff,
		maxMediaBytes: maxMedia,
		logger:        logger,
		userAgent:     userAgent,
	}, nil
}

// SendText posts a text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, req SendTextRequest) (*SendResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	from := strings.TrimSpace(req.PhoneNumberID)
	if from == "" {
		from = c.phoneNumberID
	}
	if from == "" {
		return nil, errors.New("whatsappclient: phone number id required")
	}

	payload := sendTextPayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               req.To,
		Type:             "text",
		Text:             textBody{Body: req.Body, PreviewURL: req.PreviewURL},
	}
	if req.ReplyToMessageID != "" {
		payload.Context = &replyContext{MessageID: req.ReplyToMessageID}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("whatsappclient: marshal send body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, c.buildURL("/"+url.PathEscape(from)+"/messages"), body, "application/json", 0, false)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Contacts []struct {
			Input string `json:"input"`
			WaID  string `json:"wa_id"`
		} `json:"contacts"`
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("whatsappclient: decode send response: %w", err)
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return nil, errors.New("whatsappclient: send response missing message id")
	}
	resp := &SendResponse{MessageID: parsed.Messages[0].ID}
	if len(parsed.Contacts) > 0 {
		resp.WaID = parsed.Contacts[0].WaID
	}
	return resp, nil
}

// GetMedia resolves a media handle to its short-lived download URL.
func (c *Client) GetMedia(ctx context.Context, mediaID string) (*MediaInfo, error) {
	mediaID = strings.TrimSpace(mediaID)
	if mediaID == "" {
		return nil, errors.New("whatsappclient: media id required")
	}
	data, err := c.invoke(ctx, http.MethodGet, c.buildURL("/"+url.PathEscape(mediaID)), nil, "", 0, true)
	if err != nil {
		return nil, err
	}
	var info MediaInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("whatsappclient: decode media info: %w", err)
	}
	if info.URL == "" {
		return nil, errors.New("whatsappclient: media info missing url")
	}
	return &info, nil
}

// Download fetches media bytes from a URL returned by GetMedia using the
// same bearer credential.
func (c *Client) Download(ctx context.Context, mediaURL string) ([]byte, error) {
	if strings.TrimSpace(mediaURL) == "" {
		return nil, errors.New("whatsappclient: media url required")
	}
	return c.invoke(ctx, http.MethodGet, mediaURL, nil, "", c.maxMediaBytes, true)
}

// VerifySignature checks an X-Hub-Signature-256 header against the app secret.
func VerifySignature(appSecret string, payload []byte, header string) error {
	if appSecret == "" {
		return errors.New("whatsappclient: app secret not configured")
	}
	sig := strings.TrimSpace(header)
	if sig == "" {
		return errors.New("whatsappclient: missing signature header")
	}
	sig = strings.TrimPrefix(sig, "sha256=")
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces the header value Meta would send for payload.
func Sign(appSecret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// invoke performs the request with retry on 429/5xx and transport timeouts.
// When replayable is false only 429 and connection failures are retried,
// since a 5xx or a dropped response may follow an accepted send.
// A positive limit caps the response body size.
func (c *Client) invoke(ctx context.Context, method, fullURL string, body []byte, contentType string, limit int64, replayable bool) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("whatsappclient: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			ct := contentType
			if ct == "" {
				ct = "application/json"
			}
			req.Header.Set("Content-Type", ct)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			retry := shouldRetry(0, err)
			if !replayable {
				retry = neverSent(err)
			}
			if !retry || attempt == c.maxRetries {
				return nil, fmt.Errorf("whatsappclient: http error: %w", err)
			}
			lastErr = err
			c.logRetry(req.URL.Path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		data, readErr := readBody(resp.Body, limit)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		retry := shouldRetry(resp.StatusCode, nil)
		if !replayable {
			retry = resp.StatusCode == http.StatusTooManyRequests
		}
		if attempt < c.maxRetries && retry {
			lastErr = apiErr
			c.logRetry(req.URL.Path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("whatsappclient: request failed without response")
}

func readBody(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("whatsappclient: read response: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("whatsappclient: read response: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrMediaTooLarge
	}
	return data, nil
}

func (c *Client) buildURL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("whatsapp retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}

// neverSent reports whether err happened before the request reached the
// server, which makes a non-idempotent retry safe.
func neverSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// APIError is the Graph API error envelope.
type APIError struct {
	StatusCode   int    `json:"-"`
	Message      string `json:"message,omitempty"`
	Type         string `json:"type,omitempty"`
	Code         int    `json:"code,omitempty"`
	ErrorSubcode int    `json:"error_subcode,omitempty"`
	FBTraceID    string `json:"fbtrace_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("whatsappclient: %s (status=%d code=%d)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("whatsappclient: http status %d", e.StatusCode)
}

// Temporary reports whether retrying later could succeed.
func (e *APIError) Temporary() bool {
	return shouldRetry(e.StatusCode, nil)
}

func decodeAPIError(status int, body []byte) error {
	var parsed struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error == nil {
		return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	parsed.Error.StatusCode = status
	return parsed.Error
}
