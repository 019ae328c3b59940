package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrRequestFailed = errors.New("gateway request failed")
	ErrRejected      = errors.New("gateway rejected request")
)

const maxResponseBytes = 1 << 20

type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*Verification, error)
}

type InitializeRequest struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type Transaction struct {
	ID              int64           `json:"id"`
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Channel         string          `json:"channel"`
	GatewayResponse string          `json:"gateway_response"`
	PaidAt          string          `json:"paid_at"`
	Metadata        json.RawMessage `json:"metadata"`
	Customer        json.RawMessage `json:"customer"`
	Authorization   json.RawMessage `json:"authorization"`
	Log             json.RawMessage `json:"log"`
}

// CustomerCode extracts customer.customer_code, or "" when absent.
func (t *Transaction) CustomerCode() string {
	var c struct {
		Code string `json:"customer_code"`
	}
	if len(t.Customer) == 0 || json.Unmarshal(t.Customer, &c) != nil {
		return ""
	}
	return c.Code
}

// PaidAtTime parses PaidAt, returning nil when it is empty or malformed.
func (t *Transaction) PaidAtTime() *time.Time {
	if t.PaidAt == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, t.PaidAt)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}

// MetadataString returns metadata[key] when metadata is an object holding a
// string under key.
func (t *Transaction) MetadataString(key string) string {
	var m map[string]any
	if len(t.Metadata) == 0 || json.Unmarshal(t.Metadata, &m) != nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Verification is the gateway's answer for a reference. Data holds the raw
// "data" object verbatim.
type Verification struct {
	Status      bool
	Message     string
	Transaction *Transaction
	Data        json.RawMessage
}

// Successful reports whether the gateway confirmed the charge. Only an
// envelope status of true with a transaction status of exactly "success"
// counts.
func (v *Verification) Successful() bool {
	return v != nil && v.Status && v.Transaction != nil && v.Transaction.Status == "success"
}

// GatewayStatus is the transaction status the gateway reported, or "failed"
// when it reported none.
func (v *Verification) GatewayStatus() string {
	if v == nil || v.Transaction == nil || v.Transaction.Status == "" {
		return "failed"
	}
	return strings.ToLower(v.Transaction.Status)
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode initialize request: %w", err)
	}

	env, code, err := c.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}
	if !env.Status || code >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: initialize %s: %s", ErrRejected, req.Reference, env.Message)
	}

	var result InitializeResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed initialize data: %v", ErrRequestFailed, err)
	}
	if result.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: initialize %s returned no authorization url", ErrRejected, req.Reference)
	}

	return &result, nil
}

// Verify asks the gateway about reference. A 4xx answer carrying an envelope
// is a verdict, not an error: it comes back with Status false.
func (c *Client) Verify(ctx context.Context, reference string) (*Verification, error) {
	env, code, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	v := &Verification{Status: env.Status, Message: env.Message, Data: env.Data}
	if code >= http.StatusBadRequest {
		v.Status = false
	}

	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		var tx Transaction
		if err := json.Unmarshal(env.Data, &tx); err != nil {
			if v.Status {
				return nil, fmt.Errorf("%w: malformed verify data: %v", ErrRequestFailed, err)
			}
		} else {
			v.Transaction = &tx
		}
	}

	return v, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*envelope, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: reading response: %v", ErrRequestFailed, err)
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Gateway call")

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, resp.StatusCode, fmt.Errorf("%w: %s %s returned %d", ErrRequestFailed, method, path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %s %s returned non-JSON body (status %d)", ErrRequestFailed, method, path, resp.StatusCode)
	}

	return &env, resp.StatusCode, nil
}

// ToMinorUnits converts a major-unit amount to the integer minor units the
// gateway expects, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// VerifySignature checks a webhook body against the hex HMAC-SHA512 signature
// the gateway computes with the secret key.
func VerifySignature(secretKey string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign computes the signature VerifySignature accepts.
func Sign(secretKey string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
