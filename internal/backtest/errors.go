package backtest

import (
	"errors"
	"fmt"
	"time"
)

// ConfigValidationError rejects a run before it ever reaches running:
// unknown strategy, out-of-range parameters, inverted dates, empty universe.
type ConfigValidationError struct {
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid backtest config: %s", e.Reason)
}

func configErr(format string, args ...interface{}) error {
	return &ConfigValidationError{Reason: fmt.Sprintf(format, args...)}
}

// DataIntegrityError marks malformed or missing price data discovered
// mid-run. It is fatal to the run; partial results are kept for diagnostics.
type DataIntegrityError struct {
	Code   string
	Date   time.Time
	Reason string
}

func (e *DataIntegrityError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("data integrity: %s", e.Reason)
	}
	return fmt.Sprintf("data integrity: %s %s: %s", e.Code, e.Date.Format("2006-01-02"), e.Reason)
}

// CapitalConstraintViolation signals that cash went negative. The simulator
// downsizes or rejects buys so this cannot happen through the public API;
// seeing it means a bug, and the run fails rather than continuing on a
// corrupt portfolio.
type CapitalConstraintViolation struct {
	Cash string
}

func (e *CapitalConstraintViolation) Error() string {
	return fmt.Sprintf("capital constraint violated: cash is negative (%s)", e.Cash)
}

// IsConfigValidation reports whether err is a pre-start validation failure.
func IsConfigValidation(err error) bool {
	var cve *ConfigValidationError
	return errors.As(err, &cve)
}
