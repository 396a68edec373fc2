// Package validator performs QR credential validation against the remote
// authority, falling back to the offline engine when the backend cannot be
// reached. It also pulls the offline pre-provisioning bundle for a site.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nubewired/scangate/internal/codec"
	"github.com/nubewired/scangate/internal/common"
	"github.com/nubewired/scangate/internal/logging"
	"github.com/nubewired/scangate/internal/offline"
	"github.com/nubewired/scangate/internal/signing"
)

// credentials is the slice of the session layer the client needs: the bearer
// token and the request-signing key.
type credentials interface {
	Token() (string, error)
	SigningKey() ([]byte, error)
}

// ValidationRequest is the body posted to the validation endpoint.
type ValidationRequest struct {
	QRData   string `json:"qrData"`
	ScanMode string `json:"scan_mode,omitempty"`
}

// ValidationResponse is the server's verdict on a scanned credential.
type ValidationResponse struct {
	Status     string                  `json:"status"`
	Contractor *offline.ContractorInfo `json:"contractor,omitempty"`
	Reason     string                  `json:"reason,omitempty"`
	TOTPSeed   string                  `json:"totpSeed,omitempty"`
}

// Granted reports whether the server granted access.
func (r *ValidationResponse) Granted() bool {
	return r != nil && r.Status == string(offline.StatusGranted)
}

// Client talks to the contractor validation backend. Every request carries
// the scanner's bearer token and, once a signing key has been provisioned,
// the HMAC request signature.
type Client struct {
	baseURL string
	http    *http.Client
	creds   credentials
	log     logging.Logger
	clock   func() time.Time
}

func NewClient(baseURL string, timeout time.Duration, creds credentials, log logging.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		log:     log,
		clock:   time.Now,
	}
}

// ValidateQR submits the raw QR string for server-side validation. A reply
// from the server, grant or deny, is returned as a response; only transport
// failures and unintelligible server errors come back as errors.
func (c *Client) ValidateQR(ctx context.Context, qrData, scanMode string) (*ValidationResponse, error) {
	body, err := json.Marshal(ValidationRequest{QRData: qrData, ScanMode: scanMode})
	if err != nil {
		return nil, fmt.Errorf("marshal validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/qr/validate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req, body); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validate request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read validation response: %w", err)
	}

	// The server expresses denials both as 200s with status "denied" and as
	// 4xx with a response body. Decode the body first and only fall back to
	// the status code when it is not a recognizable verdict.
	var vr ValidationResponse
	if err := json.Unmarshal(raw, &vr); err == nil && vr.Status != "" {
		return &vr, nil
	}

	if reason, ok := codec.DecodeDenialReason(raw); ok {
		return &ValidationResponse{Status: string(offline.StatusDenied), Reason: reason}, nil
	}

	c.log.Error(ctx, "unintelligible validation response", "status_code", resp.StatusCode)
	return nil, fmt.Errorf("%w: http %d", common.ErrServerError, resp.StatusCode)
}

// FetchOfflineBundle downloads the pre-provisioning bundle for siteCode.
func (c *Client) FetchOfflineBundle(ctx context.Context, siteCode string) (*codec.OfflineBundle, error) {
	url := fmt.Sprintf("%s/api/v1/sites/%s/offline-bundle", c.baseURL, siteCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req, nil); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bundle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d", common.ErrServerError, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return codec.DecodeBundle(raw)
}

// authorize attaches the bearer token and the request signature. A missing
// signing key leaves the request unsigned (pre-provisioning terminals).
func (c *Client) authorize(req *http.Request, body []byte) error {
	token, err := c.creds.Token()
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	key, err := c.creds.SigningKey()
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	signing.Attach(req, body, key, c.clock())
	return nil
}
