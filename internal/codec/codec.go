// Package codec decodes the wire formats the scanner engine consumes: the
// base64 QR credential payload, the offline pre-provisioning bundle, and the
// best-effort denial-reason envelope. All functions are pure.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/nubewired/scangate/internal/common"
)

// QRPayload is the structured content of a single scanned QR credential.
// It is immutable once decoded; one scan yields at most one payload.
type QRPayload struct {
	ContractorID      string `json:"contractorId"`
	Timestamp         int64  `json:"timestamp"`
	TOTPToken         string `json:"totpToken"`
	SiteCode          string `json:"siteCode"`
	Nonce             string `json:"nonce"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	AccessMode        string `json:"accessMode,omitempty"`
}

// BundleContractor is one contractor record inside an offline bundle.
type BundleContractor struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Company   string `json:"company,omitempty"`
	Photo     string `json:"photo,omitempty"`
	TOTPSeed  string `json:"totpSeed"`
}

// OfflineBundle is the server-pushed batch used to pre-provision a terminal
// for a whole site before going offline.
type OfflineBundle struct {
	SiteCode    string             `json:"siteCode"`
	SiteName    string             `json:"siteName"`
	GeneratedAt int64              `json:"generatedAt"`
	Contractors []BundleContractor `json:"contractors"`
}

// FullName returns the contractor's display name.
func (c BundleContractor) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// DecodeQRPayload base64-decodes raw and parses the credential record.
// Malformed base64, malformed JSON, or a missing required field all yield an
// error wrapping common.ErrDecode.
func DecodeQRPayload(raw string) (*QRPayload, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %w", common.ErrDecode, err)
	}

	var p QRPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %w", common.ErrDecode, err)
	}

	switch {
	case p.ContractorID == "":
		return nil, fmt.Errorf("%w: missing contractorId", common.ErrDecode)
	case p.Timestamp == 0:
		return nil, fmt.Errorf("%w: missing timestamp", common.ErrDecode)
	case p.TOTPToken == "":
		return nil, fmt.Errorf("%w: missing totpToken", common.ErrDecode)
	case p.SiteCode == "":
		return nil, fmt.Errorf("%w: missing siteCode", common.ErrDecode)
	case p.Nonce == "":
		return nil, fmt.Errorf("%w: missing nonce", common.ErrDecode)
	case p.DeviceFingerprint == "":
		return nil, fmt.Errorf("%w: missing deviceFingerprint", common.ErrDecode)
	}

	return &p, nil
}

// DecodeBundle parses the bulk sync payload from the remote authority.
func DecodeBundle(raw []byte) (*OfflineBundle, error) {
	var b OfflineBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: invalid bundle: %w", common.ErrDecode, err)
	}
	if b.SiteCode == "" {
		return nil, fmt.Errorf("%w: missing siteCode", common.ErrDecode)
	}
	return &b, nil
}

// DecodeDenialReason extracts a "reason" field from a response envelope that
// does not decode as a full validation response. Used when the server returns
// an error body whose shape we do not otherwise know.
func DecodeDenialReason(raw []byte) (string, bool) {
	var envelope struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", false
	}
	if envelope.Reason == "" {
		return "", false
	}
	return envelope.Reason, true
}

// EncodeQRPayload encodes a payload the way contractor credentials are
// minted: JSON wrapped in base64. Primarily used by tests and fixtures.
func EncodeQRPayload(p *QRPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
