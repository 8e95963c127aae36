package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateFormats(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	for _, value := range []string{
		"Tue, 05 Mar 2024 14:30:00 +0000",
		"Tue, 5 Mar 2024 14:30:00 +0000 (UTC)",
		"5 Mar 2024 14:30:00 +0000",
		"Tue, 5 Mar 2024 09:30:00 -0500",
	} {
		got, err := ParseDate(value)
		require.NoError(t, err, value)
		assert.True(t, want.Equal(got), "%s parsed as %s", value, got)
	}

	_, err := ParseDate("")
	assert.Error(t, err)
	_, err = ParseDate("not a date")
	assert.Error(t, err)
}

func TestFetchOptionsKeep(t *testing.T) {
	since := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	opts := FetchOptions{
		Since: since,
		Skip:  func(uid string) bool { return uid == "seen" },
	}
	assert.False(t, opts.Keep("seen", since.Add(time.Hour)))
	assert.False(t, opts.Keep("old", since.Add(-time.Hour)))
	assert.True(t, opts.Keep("new", since.Add(time.Hour)))
	assert.True(t, opts.Keep("undated", time.Time{}))
	assert.True(t, FetchOptions{}.Keep("any", time.Time{}))
}
