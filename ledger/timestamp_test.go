package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/model"
)

func TestDecodeTimestampCanonical(t *testing.T) {
	ts, err := DecodeTimestamp("1513336827593")
	require.NoError(t, err)
	assert.Equal(t, model.Timestamp(1513336827593), ts)
}

func TestDecodeTimestampLegacyMillis(t *testing.T) {
	ts, err := DecodeTimestamp("15-12-2017 16:50:31:703")
	require.NoError(t, err)

	want := time.Date(2017, 12, 15, 16, 50, 31, 703*int(time.Millisecond), time.UTC)
	assert.Equal(t, model.Timestamp(want.UnixMilli()), ts)
}

func TestDecodeTimestampLegacySeconds(t *testing.T) {
	ts, err := DecodeTimestamp("15-12-2017 16:50:31")
	require.NoError(t, err)

	want := time.Date(2017, 12, 15, 16, 50, 31, 0, time.UTC)
	assert.Equal(t, model.Timestamp(want.UnixMilli()), ts)
}

// A legacy string and the canonical decimal for the same instant must
// decode to equal timestamps.
func TestDecodeTimestampEquivalence(t *testing.T) {
	legacy, err := DecodeTimestamp("15-12-2017 16:50:31:703")
	require.NoError(t, err)
	canonical, err := DecodeTimestamp(legacy.String())
	require.NoError(t, err)
	assert.Equal(t, legacy, canonical)
}

func TestDecodeTimestampRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "yesterday", "15/12/2017", "15-12-2017 16:50:31:7035"} {
		_, err := DecodeTimestamp(in)
		assert.Error(t, err, "input %q", in)
	}
}
