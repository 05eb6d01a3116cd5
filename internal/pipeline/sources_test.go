package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forumwatch/internal/radar"
	"github.com/JakeFAU/forumwatch/internal/storage/memory"
)

func TestAddSourceDetectsPlatform(t *testing.T) {
	t.Parallel()
	store := memory.NewStore()

	src, err := AddSource(context.Background(), store, "", "https://www.Boards.test/discussions", "", "tips")
	require.NoError(t, err)
	assert.Equal(t, "boards.test", src.Host)
	assert.Equal(t, radar.PlatformVanilla, src.Platform)
	assert.Equal(t, "manual", src.DiscoveredVia)
	assert.True(t, src.IsActive)
	assert.True(t, src.IsEnabled)
}

func TestAddSourceExplicitPlatform(t *testing.T) {
	t.Parallel()
	store := memory.NewStore()

	src, err := AddSource(context.Background(), store, "forum.test", "", "PHPBB", "")
	require.NoError(t, err)
	assert.Equal(t, radar.PlatformPHPBB, src.Platform)
	assert.Equal(t, "https://forum.test", src.URL)
}

func TestAddSourceRejectsEmptyHost(t *testing.T) {
	t.Parallel()

	_, err := AddSource(context.Background(), memory.NewStore(), " ", "", "", "")
	require.Error(t, err)
}
