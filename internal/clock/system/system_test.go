package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forumwatch/internal/radar"
)

var _ radar.Clock = New()

func TestClockNowUTCSeconds(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := New().Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	assert.Zero(t, got.Nanosecond())
	assert.True(t, got.After(before) && got.Before(after), "got %v", got)
}
