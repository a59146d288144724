package service

import (
	"errors"
	"fmt"

	"grainflow/models"
)

// ViolationKind names the rule a rejected request broke
type ViolationKind string

const (
	ViolationInvalidReason        ViolationKind = "InvalidReason"
	ViolationInvalidAmount        ViolationKind = "InvalidAmount"
	ViolationInsufficientBalance  ViolationKind = "InsufficientBalance"
	ViolationDailyLimitExceeded   ViolationKind = "DailyLimitExceeded"
	ViolationDualApprovalRequired ViolationKind = "DualApprovalRequired"
	ViolationHarvestThrottled     ViolationKind = "HarvestThrottled"
	ViolationInvalidRate          ViolationKind = "InvalidRate"
)

// RuleViolation is an expected refusal. Callers map Kind to a response; Limit and
// Attempted carry the numbers of the constraint that was hit when they apply.
type RuleViolation struct {
	Kind      ViolationKind
	Reason    models.Reason
	Message   string
	Limit     int64
	Attempted int64
}

func (v *RuleViolation) Error() string {
	if v.Message == "" {
		return string(v.Kind)
	}
	return fmt.Sprintf("%s: %s", v.Kind, v.Message)
}

// Is matches any violation of the same kind, so errors.Is works against the sentinels below
func (v *RuleViolation) Is(target error) bool {
	t, ok := target.(*RuleViolation)
	return ok && t.Kind == v.Kind
}

var (
	ErrInvalidReason        = &RuleViolation{Kind: ViolationInvalidReason}
	ErrInvalidAmount        = &RuleViolation{Kind: ViolationInvalidAmount}
	ErrInsufficientBalance  = &RuleViolation{Kind: ViolationInsufficientBalance}
	ErrDailyLimitExceeded   = &RuleViolation{Kind: ViolationDailyLimitExceeded}
	ErrDualApprovalRequired = &RuleViolation{Kind: ViolationDualApprovalRequired}
	ErrHarvestThrottled     = &RuleViolation{Kind: ViolationHarvestThrottled}
	ErrInvalidRate          = &RuleViolation{Kind: ViolationInvalidRate}
)

// AsRuleViolation extracts a rule violation from an error chain
func AsRuleViolation(err error) (*RuleViolation, bool) {
	var v *RuleViolation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// SystemError wraps an infrastructure failure that aborted an operation
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() error {
	return e.Err
}

// IsSystemError reports whether err is an infrastructure failure rather than a rule violation
func IsSystemError(err error) bool {
	var s *SystemError
	return errors.As(err, &s)
}

func systemError(op string, err error) error {
	return &SystemError{Op: op, Err: err}
}
