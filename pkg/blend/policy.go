package blend

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrorPolicy decides what a read does when the file cannot provide what the
// caller asked for: a missing or mismatching field, or a type without a
// converter. Shorter on-disk arrays are never a policy matter.
type ErrorPolicy int

const (
	// Warn logs the problem and substitutes a default value.
	Warn ErrorPolicy = iota
	// Fail aborts the decode with the error.
	Fail
	// Ignore substitutes a default value without logging.
	Ignore
)

func (p ErrorPolicy) String() string {
	switch p {
	case Warn:
		return "warn"
	case Fail:
		return "fail"
	case Ignore:
		return "ignore"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParseErrorPolicy maps a configuration string to a policy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warn", "":
		return Warn, nil
	case "fail":
		return Fail, nil
	case "ignore":
		return Ignore, nil
	}
	return Warn, fmt.Errorf("unknown error policy %q", s)
}

// apply routes a recoverable error through the policy. A nil return means
// the caller substitutes its default and carries on.
func (db *Database) apply(ep ErrorPolicy, err error) error {
	switch ep {
	case Fail:
		return err
	case Warn:
		db.logger.Warn(policyMessage(err), "error", err)
	}
	return nil
}

func policyMessage(err error) string {
	switch {
	case errors.Is(err, ErrFieldMissing):
		return "Missing field, using default"
	case errors.Is(err, ErrNoConverter):
		return "No converter for type, skipping object"
	case errors.Is(err, ErrFieldMismatch):
		return "Field shape mismatch, using default"
	}
	return "Recoverable decode error"
}

// Statistics counts the work done by one decode session.
type Statistics struct {
	BlocksRead       int
	FieldsRead       int
	PointersResolved int
	CacheHits        int
	CachedObjects    int
}

// LogValue lets a Statistics value be passed to slog directly.
func (s Statistics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("blocks_read", s.BlocksRead),
		slog.Int("fields_read", s.FieldsRead),
		slog.Int("pointers_resolved", s.PointersResolved),
		slog.Int("cache_hits", s.CacheHits),
		slog.Int("cached_objects", s.CachedObjects),
	)
}
