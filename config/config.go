package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Policy bundles the tunable ledger parameters. Values are policy, not
// invariants: deployments override them through the environment.
type Policy struct {
	// MinVerificationDeposit is the smallest deposit accepted when
	// submitting an ownership verification, in base units.
	MinVerificationDeposit int64
	// DisputeDeposit is the fixed deposit required to file a dispute.
	DisputeDeposit int64
	// RegistrationFee is the fee charged when registering a work.
	RegistrationFee int64
	// VerificationTimeout is how long a verification request may sit
	// unanswered before the requester can reclaim the deposit.
	VerificationTimeout time.Duration
	// DisputeTimeout is the reclaim window after a resolution request.
	DisputeTimeout time.Duration
	// MaxDisputesPerWork bounds the per-work dispute list.
	MaxDisputesPerWork int
	// FingerprintBits is the width of content fingerprints, 1 to 64.
	// Wider values reduce collision odds.
	FingerprintBits int
}

// Default returns the stock policy used when the environment is silent.
func Default() Policy {
	return Policy{
		MinVerificationDeposit: 1_000,
		DisputeDeposit:         5_000,
		RegistrationFee:        1_000,
		VerificationTimeout:    time.Hour,
		DisputeTimeout:         24 * time.Hour,
		MaxDisputesPerWork:     10,
		FingerprintBits:        32,
	}
}

// FromEnv overlays environment overrides onto the default policy.
func FromEnv() (Policy, error) {
	p := Default()

	if err := overlayInt64(&p.MinVerificationDeposit, "MIN_VERIFICATION_DEPOSIT"); err != nil {
		return Policy{}, err
	}
	if err := overlayInt64(&p.DisputeDeposit, "DISPUTE_DEPOSIT"); err != nil {
		return Policy{}, err
	}
	if err := overlayInt64(&p.RegistrationFee, "REGISTRATION_FEE"); err != nil {
		return Policy{}, err
	}
	if err := overlayDuration(&p.VerificationTimeout, "VERIFICATION_TIMEOUT"); err != nil {
		return Policy{}, err
	}
	if err := overlayDuration(&p.DisputeTimeout, "DISPUTE_TIMEOUT"); err != nil {
		return Policy{}, err
	}
	if err := overlayInt(&p.MaxDisputesPerWork, "MAX_DISPUTES_PER_WORK"); err != nil {
		return Policy{}, err
	}
	if err := overlayInt(&p.FingerprintBits, "FINGERPRINT_BITS"); err != nil {
		return Policy{}, err
	}

	if p.FingerprintBits < 1 || p.FingerprintBits > 64 {
		return Policy{}, fmt.Errorf("config: FINGERPRINT_BITS must be in [1,64], got %d", p.FingerprintBits)
	}
	if p.MaxDisputesPerWork < 1 {
		return Policy{}, fmt.Errorf("config: MAX_DISPUTES_PER_WORK must be positive")
	}

	return p, nil
}

func overlayInt64(dst *int64, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*dst = v
	return nil
}

func overlayInt(dst *int, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*dst = v
	return nil
}

func overlayDuration(dst *time.Duration, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*dst = v
	return nil
}
