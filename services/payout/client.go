package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// IdempotenceHeader carries the idempotence key on transfer requests.
const IdempotenceHeader = "Idempotence-Key"

// TransferRequest is one payout to an external destination account.
type TransferRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	DestinationID  string            `json:"destination"`
	IdempotenceKey string            `json:"-"`
	Reason         string            `json:"reason"`
	Notes          map[string]string `json:"notes,omitempty"`
}

// Receipt is returned by the provider for an accepted transfer.
type Receipt struct {
	TransferID string `json:"id"`
}

// Transferer moves money to a creator's external account. Implementations must honour the idempotence key.
type Transferer interface {
	Transfer(ctx context.Context, req TransferRequest) (Receipt, error)
}

// Config configures the HTTP client.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	Timeout      time.Duration
}

// HTTPClient calls the payout provider's REST API.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

// NewHTTPClient builds a client; requests are authenticated with OAuth2 client credentials when TokenURL is set.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := &http.Client{Timeout: timeout}
	if cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		hc = cc.Client(context.Background())
		hc.Timeout = timeout
	}

	return &HTTPClient{baseURL: strings.TrimRight(cfg.BaseURL, "/"), hc: hc}
}

// Transfer posts a transfer and decodes the provider's receipt or error.
func (c *HTTPClient) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Receipt{}, &Error{Code: CodeInvalidRequest, Message: "encode transfer", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, &Error{Code: CodeInvalidRequest, Message: "build transfer request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(IdempotenceHeader, req.IdempotenceKey)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return Receipt{}, &Error{Code: CodeTransport, Message: "transfer request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Receipt{}, &Error{Code: CodeTransport, HTTPStatus: resp.StatusCode, Message: "read transfer response", Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var receipt Receipt
		if err := json.Unmarshal(raw, &receipt); err != nil || receipt.TransferID == "" {
			return Receipt{}, &Error{Code: CodeBadResponse, HTTPStatus: resp.StatusCode, Message: "transfer response without id"}
		}
		return receipt, nil
	}

	return Receipt{}, decodeError(resp.StatusCode, raw)
}

func decodeError(status int, raw []byte) *Error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)

	e := &Error{HTTPStatus: status, Code: body.Error.Code, Message: body.Error.Message}
	if e.Code == "" {
		e.Code = codeForStatus(status)
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("payout provider returned %d", status)
	}
	return e
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return CodeInvalidRequest
	case status == http.StatusNotFound:
		return CodeInvalidDestination
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeServerError
	default:
		return fmt.Sprintf("http_%d", status)
	}
}
