package configs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/unbasical/slotupdate/examples"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func Test_AgentConfigExample(t *testing.T) {
	cfg := DefaultAgentConfig()
	decoder := yaml.NewDecoder(strings.NewReader(examples.AgentExampleConfig()))
	decoder.KnownFields(true)
	require.NoError(t, decoder.Decode(&cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "dual", cfg.Platform)
	assert.Equal(t, SourceKindOCI, cfg.Source.Kind)
	assert.Equal(t, DefaultManifestName, cfg.Source.ManifestName)
}

func Test_VerifierConfigExample(t *testing.T) {
	cfg := DefaultVerifierConfig()
	decoder := yaml.NewDecoder(strings.NewReader(examples.VerifierExampleConfig()))
	decoder.KnownFields(true)
	require.NoError(t, decoder.Decode(&cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Health.Timeout)
	assert.Equal(t, "v3.2.15", cfg.MCU.Expected["main"])
	assert.Len(t, cfg.Health.Commands, 1)
}

func TestLoadAgentConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, cfg *AgentConfig)
	}{
		{
			name:    "defaults fill unset fields",
			content: "source:\n  path: /payloads\n",
			check: func(t *testing.T, cfg *AgentConfig) {
				assert.Equal(t, "simple", cfg.Platform)
				assert.Equal(t, SourceKindDir, cfg.Source.Kind)
				assert.Equal(t, "/payloads", cfg.Source.Path)
				assert.Equal(t, DefaultWorkspace, cfg.Workspace)
				assert.NotEmpty(t, cfg.Capsule.ESPCandidates)
			},
		},
		{name: "unknown field", content: "source:\n  path: /p\nbogus: 1\n", wantErr: true},
		{name: "unknown platform", content: "platform: triple\nsource:\n  path: /p\n", wantErr: true},
		{name: "missing source path", content: "platform: dual\n", wantErr: true},
		{name: "oci without reference", content: "source:\n  kind: oci\n  path: /layout\n", wantErr: true},
		{name: "unknown source kind", content: "source:\n  kind: http\n  path: /p\n", wantErr: true},
		{name: "no manifest", content: "source:\n  path: /p\n  manifest-name: \"\"\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadAgentConfig(writeConfig(t, tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadVerifierConfig(t *testing.T) {
	cfg, err := LoadVerifierConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMCUCommand, cfg.MCU.Command)
	assert.Empty(t, cfg.Health.URL)

	_, err = LoadVerifierConfig(writeConfig(t, "health:\n  commands:\n    - []\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadVerifierConfig(writeConfig(t, "mcu:\n  command: []\n  expected:\n    main: \"1.0\"\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadVerifierConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
