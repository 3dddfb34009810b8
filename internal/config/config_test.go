package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadStrategy_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadStrategy(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultStrategy(), *cfg)
}

func TestLoadStrategy_OverridesDefaults(t *testing.T) {
	path := writeFile(t, `
candidates: ["005930", "000660"]
screening:
  min_gap_percent: 3
  call_delay: 250ms
risk:
  stop_loss_percent: 2.5
clock:
  tick_interval: 2s
`)
	cfg, err := LoadStrategy(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"005930", "000660"}, cfg.Candidates)
	assert.Equal(t, 3.0, cfg.Screening.MinGapPercent)
	assert.Equal(t, 7.0, cfg.Screening.MaxGapPercent)
	assert.Equal(t, 250*time.Millisecond, cfg.Screening.CallDelay)
	assert.Equal(t, 2.5, cfg.Risk.StopLossPercent)
	assert.Equal(t, 1.5, cfg.Risk.TP1Percent)
	assert.Equal(t, 2*time.Second, cfg.Clock.TickInterval)
}

func TestStrategyConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *StrategyConfig)
		wantErr bool
	}{
		{"defaults", func(s *StrategyConfig) {}, false},
		{"gap range inverted", func(s *StrategyConfig) { s.Screening.MaxGapPercent = 1 }, true},
		{"pullback range inverted", func(s *StrategyConfig) { s.Pullback.MaxPullbackPercent = 0.5 }, true},
		{"size ratio above one", func(s *StrategyConfig) { s.Position.SizeRatio = 1.5 }, true},
		{"zero positions", func(s *StrategyConfig) { s.Position.MaxPositions = 0 }, true},
		{"bad clock", func(s *StrategyConfig) { s.Clock.TradingStart = "9h05" }, true},
		{"clock not increasing", func(s *StrategyConfig) { s.Clock.FinalExitStart = "09:00" }, true},
		{"unknown timezone", func(s *StrategyConfig) { s.Clock.Timezone = "Mars/Olympus" }, true},
		{"empty candidate", func(s *StrategyConfig) { s.Candidates = []string{""} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultStrategy()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("15:10")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Hour+10*time.Minute, d)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STRATEGY_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STORAGE", "memory")
	t.Setenv("MODE", domain.ModeDryRun)
	t.Setenv("BROKER_BASE_URL", "https://broker.example.com")
	t.Setenv("BROKER_APP_KEY", "k")
	t.Setenv("BROKER_APP_SECRET", "s")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDryRun, cfg.Mode)
	assert.Equal(t, int64(42), cfg.Telegram.ChatID)
	assert.True(t, cfg.BrokerConfigured())
	assert.Equal(t, 10*time.Second, cfg.Broker.Timeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad mode", map[string]string{"MODE": "PAPER"}},
		{"postgres without password", map[string]string{"STORAGE": "postgres", "DB_PASSWORD": ""}},
		{"bad chat id", map[string]string{"TELEGRAM_CHAT_ID": "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STRATEGY_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
			t.Setenv("STORAGE", "memory")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingBrokerKeysIsNotAnError(t *testing.T) {
	t.Setenv("STRATEGY_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STORAGE", "memory")
	t.Setenv("BROKER_APP_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.BrokerConfigured())
}
