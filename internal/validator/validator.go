package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/nubewired/scangate/internal/common"
	"github.com/nubewired/scangate/internal/history"
	"github.com/nubewired/scangate/internal/logging"
	"github.com/nubewired/scangate/internal/offline"
)

const (
	// remoteAttempts is the total number of tries against the backend per
	// scan. Guards are standing in front of the terminal, so one quick retry
	// is all the latency budget allows.
	remoteAttempts = 2
	retryBackoff   = 500 * time.Millisecond

	// attemptedCap bounds the per-QR offline fallback bookkeeping.
	attemptedCap = 128
)

// Service orchestrates a scan: server validation with a bounded retry, then
// at most one offline fallback attempt per distinct QR string. The
// single-attempt rule keeps a guard re-scanning the same dead credential
// from burning its nonce twice or flapping between deny reasons.
type Service struct {
	client  *Client
	cache   *offline.Cache
	history history.Repository
	log     logging.Logger
	clock   func() time.Time

	mu        sync.Mutex
	attempted map[string]struct{}
}

func NewService(client *Client, cache *offline.Cache, hist history.Repository, log logging.Logger) *Service {
	return &Service{
		client:    client,
		cache:     cache,
		history:   hist,
		log:       log,
		clock:     time.Now,
		attempted: make(map[string]struct{}),
	}
}

// ValidateScan renders a verdict for a scanned QR string. The returned
// decision is non-nil whenever someone (server or offline engine) had an
// opinion; an error means the scan could not be judged at all and should be
// surfaced to the guard as a connectivity problem.
func (s *Service) ValidateScan(ctx context.Context, qrData, scanMode string) (*offline.Decision, error) {
	resp, err := s.validateRemote(ctx, qrData, scanMode)
	if err == nil {
		return s.acceptRemote(ctx, resp)
	}

	s.log.Warn(ctx, "server validation unavailable, trying offline", "err", err)

	if !s.markAttempted(qrData) {
		s.log.Info(ctx, "offline fallback already attempted for this credential")
		return nil, err
	}

	decision := s.cache.AttemptOfflineValidation(ctx, qrData)
	if decision == nil {
		return nil, err
	}

	s.record(ctx, decision)
	return decision, nil
}

// SyncOfflineBundle downloads the site's pre-provisioning bundle and merges
// it into the offline cache.
func (s *Service) SyncOfflineBundle(ctx context.Context, siteCode string) (int, error) {
	bundle, err := s.client.FetchOfflineBundle(ctx, siteCode)
	if err != nil {
		return 0, fmt.Errorf("fetch offline bundle: %w", err)
	}
	if err := s.cache.StoreOfflineBundle(ctx, bundle.Contractors); err != nil {
		return 0, fmt.Errorf("store offline bundle: %w", err)
	}
	return len(bundle.Contractors), nil
}

// validateRemote posts the scan, retrying transport failures once. Server
// verdicts and intelligible server errors are never retried.
func (s *Service) validateRemote(ctx context.Context, qrData, scanMode string) (*ValidationResponse, error) {
	var resp *ValidationResponse

	backoff := retry.WithMaxRetries(remoteAttempts-1, retry.NewConstant(retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		resp, err = s.client.ValidateQR(ctx, qrData, scanMode)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrServerError) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// acceptRemote converts a server verdict into a decision, caches granted
// credentials for later offline use, and records history.
func (s *Service) acceptRemote(ctx context.Context, resp *ValidationResponse) (*offline.Decision, error) {
	decision := &offline.Decision{
		Status:     offline.Status(resp.Status),
		Contractor: resp.Contractor,
		Reason:     resp.Reason,
	}

	if decision.Granted() && decision.Contractor != nil {
		if err := s.cache.RecordGrantedCredential(ctx, decision.Contractor.ID, *decision.Contractor, resp.TOTPSeed); err != nil {
			// Cache write failure degrades future offline coverage but must
			// not turn a server grant into an error at the gate.
			s.log.Error(ctx, "caching granted credential failed", "err", err)
		}
	}

	s.record(ctx, decision)
	return decision, nil
}

// markAttempted reports whether this is the first offline fallback for
// qrData. The set resets once it grows past attemptedCap; QR credentials
// expire within minutes, so old entries are worthless.
func (s *Service) markAttempted(qrData string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempted[qrData]; ok {
		return false
	}
	if len(s.attempted) >= attemptedCap {
		s.attempted = make(map[string]struct{})
	}
	s.attempted[qrData] = struct{}{}
	return true
}

func (s *Service) record(ctx context.Context, d *offline.Decision) {
	if s.history == nil {
		return
	}
	if err := s.history.Add(ctx, history.NewEntry(d, s.clock())); err != nil {
		s.log.Error(ctx, "history write failed", "err", err)
	}
}
