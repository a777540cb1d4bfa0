package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRulesConfigHolder_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewRulesConfigHolder()
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 15*time.Minute, cfg.GracePeriod)
	assert.Equal(t, time.Duration(0), cfg.OvertimeThreshold)
	assert.Equal(t, 15*time.Second, cfg.DedupWindow)
	assert.Equal(t, 1000, cfg.PollBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.StalenessThreshold)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestNewRulesConfigHolder_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLOCKWISE_RULES_GRACEPERIOD", "10m")
	t.Setenv("CLOCKWISE_RULES_POLLBATCHSIZE", "250")

	holder, err := NewRulesConfigHolder()
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 10*time.Minute, cfg.GracePeriod)
	assert.Equal(t, 250, cfg.PollBatchSize)
}

func TestNewRulesConfigHolder_RejectsInvalidWindow(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLOCKWISE_RULES_DEDUPWINDOW", "0s")

	_, err := NewRulesConfigHolder()
	assert.Error(t, err)
}

func TestRulesConfigHolder_NilFallsBackToDefaults(t *testing.T) {
	var holder *RulesConfigHolder
	assert.Equal(t, DefaultRulesConfig(), holder.Get())
}

func TestRulesConfig_LocationFallback(t *testing.T) {
	cfg := RulesConfig{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Timezone = ""
	assert.Equal(t, time.UTC, cfg.Location())
}
