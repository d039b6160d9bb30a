package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xssh "golang.org/x/crypto/ssh"

	"github.com/3cpo-dev/backbone/internal/cost"
)

func TestRuleSpecBuild(t *testing.T) {
	cooldown := 2.5
	tests := []struct {
		name    string
		spec    RuleSpec
		wantErr string
		want    time.Duration
	}{
		{"restart", RuleSpec{Name: "r", Check: "cpu", Action: "restart_service", Service: "nginx"}, "", time.Minute},
		{"scale default factor", RuleSpec{Name: "s", Action: "scale_resources"}, "", time.Minute},
		{"own cooldown", RuleSpec{Name: "c", Check: "disk", When: "failing", Action: "clean_cache", Cooldown: &cooldown}, "", 2500 * time.Millisecond},
		{"missing name", RuleSpec{Action: "clean_cache"}, "name", 0},
		{"restart without service", RuleSpec{Name: "r", Action: "restart_service"}, "service", 0},
		{"bad condition", RuleSpec{Name: "r", Check: "cpu", When: "sometimes", Action: "clean_cache"}, "condition", 0},
		{"unknown action", RuleSpec{Name: "r", Action: "reboot"}, "unknown action", 0},
		{"remote without host", RuleSpec{Name: "r", Action: "remote_command", Command: "uptime"}, "host", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := tt.spec.build(time.Minute)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spec.Name, rule.Name)
			assert.Equal(t, tt.want, rule.Cooldown)
			assert.True(t, rule.LastTriggered.IsZero())
		})
	}
}

func TestRuleSpecRemoteCommand(t *testing.T) {
	dir := t.TempDir()
	key := filepath.Join(dir, "id_ed25519")
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := xssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(key, pem.EncodeToMemory(block), 0o600))

	spec := RuleSpec{
		Name:       "restart_remote",
		Check:      "web",
		Action:     "remote_command",
		Command:    "systemctl restart web",
		Host:       "10.0.0.7",
		KeyPath:    key,
		KnownHosts: filepath.Join(dir, "known_hosts"),
	}
	rule, err := spec.build(time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, rule.Action)
}

func TestResourceSpec(t *testing.T) {
	r, err := ResourceSpec{ID: "db", Type: "database", CostPerHour: 0.7, Utilization: 0.4, Tags: map[string]string{"team": "core"}}.resource()
	require.NoError(t, err)
	assert.Equal(t, cost.Database, r.Type)
	assert.Equal(t, "core", r.Tags["team"])

	_, err = ResourceSpec{ID: "x", Type: "compute", CostPerHour: -1}.resource()
	assert.Error(t, err)
	_, err = ResourceSpec{Type: "compute"}.resource()
	assert.Error(t, err)
}
