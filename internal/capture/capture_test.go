package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{}.withDefaults()

	require.Equal(t, int32(65535), cfg.SnapLen)
	require.Equal(t, 500*time.Millisecond, cfg.ReadTimeout)
	require.Equal(t, 1000, cfg.QueueCapacity)
	require.Equal(t, 500*time.Millisecond, cfg.RestartBackoff)
	require.Equal(t, 30*time.Second, cfg.RestartBackoffMax)
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{
		SnapLen:       1500,
		QueueCapacity: 50,
	}.withDefaults()

	require.Equal(t, int32(1500), cfg.SnapLen)
	require.Equal(t, 50, cfg.QueueCapacity)
}
