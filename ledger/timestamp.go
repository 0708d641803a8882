package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/strata-db/strata/model"
)

// Ledger documents written before the canonical epoch-millisecond
// encoding stored timestamps as local date strings. Two legacy layouts
// exist; both are accepted on read and normalized to canonical form on
// the next write of the record.
const (
	// legacyLayout is the older second-precision pattern.
	legacyLayout = "02-01-2006 15:04:05"
	// legacyLayoutMillis appends milliseconds after a colon, which the
	// time package cannot express directly; see parseLegacyMillis.
	legacyLayoutMillis = legacyLayout + ":000"
)

// DecodeTimestamp parses a ledger timestamp field. Fallback order is
// fixed: canonical epoch-millisecond decimal, then the millisecond
// legacy pattern (dd-MM-yyyy HH:mm:ss:SSS), then the second-precision
// legacy pattern (dd-MM-yyyy HH:mm:ss). Legacy values are interpreted
// as UTC.
func DecodeTimestamp(s string) (model.Timestamp, error) {
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return model.Timestamp(n), nil
	}
	if ts, err := parseLegacyMillis(s); err == nil {
		return ts, nil
	}
	if t, err := time.ParseInLocation(legacyLayout, s, time.UTC); err == nil {
		return model.Timestamp(t.UnixMilli()), nil
	}
	return 0, fmt.Errorf("timestamp %q matches no known format", s)
}

// parseLegacyMillis handles the dd-MM-yyyy HH:mm:ss:SSS layout. The
// millisecond part is split off at the last colon and parsed separately.
func parseLegacyMillis(s string) (model.Timestamp, error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 || len(s)-idx-1 != 3 {
		return 0, fmt.Errorf("not a millisecond legacy timestamp: %q", s)
	}
	ms, err := strconv.Atoi(s[idx+1:])
	if err != nil || ms < 0 || ms > 999 {
		return 0, fmt.Errorf("not a millisecond legacy timestamp: %q", s)
	}
	t, err := time.ParseInLocation(legacyLayout, s[:idx], time.UTC)
	if err != nil {
		return 0, err
	}
	return model.Timestamp(t.UnixMilli() + int64(ms)), nil
}
