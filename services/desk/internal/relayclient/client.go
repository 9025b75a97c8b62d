// Package relayclient calls the relay service that keeps off-device copies
// of signed contracts. Forwarding is best effort by contract: callers bound
// each call with a context deadline and treat failures as log-only.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"signdesk/pkg/domain"
)

// Client calls the relay service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a relay service error response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a relay client. The underlying HTTP client carries a
// coarse timeout as a backstop; per-call deadlines come from the context.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Forward posts one signed contract to the relay and returns the relay's
// receipt. The full document payload travels in the request body, so the
// context deadline is the only thing keeping a slow relay from holding the
// caller's goroutine.
func (c *Client) Forward(ctx context.Context, contract domain.SignedContract) (ForwardResult, error) {
	payload := forwardRequest{
		TemplateName: contract.TemplateName,
		SignerName:   contract.SignerName,
		SignerPhone:  contract.SignerPhone,
		SignerEmail:  contract.SignerEmail,
		SignedAt:     contract.SignedAt,
		Document:     contract.Document,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ForwardResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/contracts", bytes.NewReader(body))
	if err != nil {
		return ForwardResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var result ForwardResult
	if err := c.do(req, &result); err != nil {
		return ForwardResult{}, err
	}
	return result, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}

// ForwardResult is the relay's acknowledgement of a stored copy.
type ForwardResult struct {
	Success  bool   `json:"success"`
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
}

type forwardRequest struct {
	TemplateName string    `json:"templateName"`
	SignerName   string    `json:"signerName"`
	SignerPhone  string    `json:"signerPhone"`
	SignerEmail  string    `json:"signerEmail"`
	SignedAt     time.Time `json:"signedAt"`
	Document     string    `json:"document"`
}
