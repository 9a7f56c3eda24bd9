package infergate

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors.
var (
	ErrAdmissionDenied     = errors.New("infergate: daily quota exceeded")
	ErrRiskEscalation      = errors.New("infergate: additional verification required")
	ErrUpstreamUnavailable = errors.New("infergate: generation upstream unavailable")
	ErrNotFound            = errors.New("infergate: not found")
	ErrStorageFailure      = errors.New("infergate: storage unavailable")
	ErrInvalidRequest      = errors.New("infergate: invalid request")
	ErrJobFinalized        = errors.New("infergate: job already finalized")
)

// AdmissionError is returned when a caller is soft-blocked after exceeding
// its daily quota.
type AdmissionError struct {
	UserID      string
	Used        int64
	Limit       int64
	UpgradeHint string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("infergate: user=%s used=%d limit=%d: daily quota exceeded", e.UserID, e.Used, e.Limit)
}

func (e *AdmissionError) Unwrap() error {
	return ErrAdmissionDenied
}

// RiskError is returned when the fraud scorer escalates a caller to KYC.
type RiskError struct {
	UserID          string
	Score           int
	Reasons         []string
	VerificationURL string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("infergate: user=%s score=%d reasons=[%s]: additional verification required",
		e.UserID, e.Score, strings.Join(e.Reasons, ", "))
}

func (e *RiskError) Unwrap() error {
	return ErrRiskEscalation
}

// storageErr wraps a backing store failure so callers can match ErrStorageFailure.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

// HTTPStatus maps an error to the status code the routing layer should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAdmissionDenied):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrRiskEscalation):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrJobFinalized):
		return http.StatusConflict
	case errors.Is(err, ErrStorageFailure), errors.Is(err, ErrPoolFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable returns true if the caller may retry the same request later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAdmissionDenied) ||
		errors.Is(err, ErrStorageFailure) ||
		errors.Is(err, ErrPoolFull)
}
