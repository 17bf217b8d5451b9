package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/collab/pkg/config"
)

func TestApplyFlagsOverridesOnlySetValues(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Node.Name = "from-config"

	applyFlags(cfg, startFlags{port: 9090, window: 500 * time.Millisecond, noJoin: true})

	assert.Equal(t, "from-config", cfg.Node.Name)
	assert.Equal(t, 9090, cfg.Collaboration.SyncPort)
	assert.Equal(t, 500*time.Millisecond, cfg.Discovery.Window)
	assert.False(t, cfg.Collaboration.AutoJoin)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Node.DataDir = t.TempDir()
	require.NoError(t, validate(cfg))

	cfg.Node.Name = ""
	cfg.Reconnect.MaxDelay = 0
	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "node.name")
	assert.Contains(t, err.Error(), "reconnect.max_delay")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "collab dev\n", out.String())
}
