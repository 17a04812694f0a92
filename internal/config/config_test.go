package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[mainConfig]
port = 9100

[chatConfig]
typingTimeout = "1500ms"
historyLimit = 20

[[seed.rooms]]
id = "general"
name = "General"
kind = "channel"
createdBy = "user1"
participants = ["user1", "user2"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAppliesValuesAndDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.MainConfig.Port)
	assert.Equal(t, "0.0.0.0", cfg.MainConfig.Host)
	assert.Equal(t, 1500*time.Millisecond, cfg.TypingTimeout.Duration)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, 200, cfg.MaxHistoryLimit)
	assert.Equal(t, "memory", cfg.Driver)
	assert.Equal(t, "channel", cfg.MessageMode)
	assert.Less(t, cfg.PingPeriod.Duration, cfg.PongWait.Duration)

	require.Len(t, cfg.Rooms, 1)
	assert.Equal(t, []string{"user1", "user2"}, cfg.Rooms[0].Participants)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CHAT_PORT", "9200")
	t.Setenv("CHAT_JWT_SECRET", "from-env")
	t.Setenv("CHAT_STORE_DRIVER", "sqlite")

	cfg, err := LoadFile(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.MainConfig.Port)
	assert.Equal(t, "from-env", cfg.Secret)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "127.0.0.1:9200", (&Config{MainConfig: MainConfig{Host: "127.0.0.1", Port: 9200}}).Addr())
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "[chatConfig]\ntypingTimeout = \"soon\"\n"))
	assert.Error(t, err)
}
