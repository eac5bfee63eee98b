package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"TEACHER_TOKEN", "CLOUD_ENABLED", "SESSION_TICK_MS", "ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "SMADA2024", cfg.TeacherToken)
	assert.True(t, cfg.CloudEnabled)
	assert.Equal(t, time.Second, cfg.SessionTick)
	assert.Nil(t, cfg.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CLOUD_ENABLED", "false")
	t.Setenv("SESSION_TICK_MS", "250")
	t.Setenv("ALLOWED_ORIGINS", " https://a.test , ,https://b.test")
	t.Setenv("MAX_DB_CONNS", "not-a-number")

	cfg := Load()

	assert.False(t, cfg.CloudEnabled)
	assert.Equal(t, 250*time.Millisecond, cfg.SessionTick)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, int32(8), cfg.MaxDBConns)
}

func TestLoadReportConfig(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := LoadReportConfig("")
		require.NoError(t, err)
		assert.Equal(t, DefaultReportConfig(), cfg)
	})

	t.Run("file overlays defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.yaml")
		content := "school_name: SMA Negeri 2\nreport_period: Semester Genap 2025\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := LoadReportConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "SMA Negeri 2", cfg.SchoolName)
		assert.Equal(t, "Semester Genap 2025", cfg.Period)
		assert.Equal(t, "Wali Kelas", cfg.SignerTitle)
		assert.Equal(t, 75, cfg.PassingAverage)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadReportConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
