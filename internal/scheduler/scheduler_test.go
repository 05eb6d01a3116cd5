package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadExpression(t *testing.T) {
	t.Parallel()

	_, err := New("every tuesday", func(context.Context) {}, nil)
	require.Error(t, err)
}

func TestNextIsInTheFuture(t *testing.T) {
	t.Parallel()

	s, err := New("*/30 * * * *", func(context.Context) {}, nil)
	require.NoError(t, err)

	next := s.Next()
	assert.True(t, next.After(time.Now()))
	assert.Contains(t, []int{0, 30}, next.Minute())
}

func TestStopCancelsJobContext(t *testing.T) {
	t.Parallel()

	s, err := New("@every 1h", func(context.Context) {}, nil)
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Error(t, s.baseCtx.Err())
}
