package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTemplates_AreValidYAML(t *testing.T) {
	for name, tmpl := range map[string]string{
		"user":  UserConfigTemplate,
		"vault": VaultConfigTemplate,
	} {
		t.Run(name, func(t *testing.T) {
			require.NotEmpty(t, tmpl)
			var parsed map[string]any
			require.NoError(t, yaml.Unmarshal([]byte(tmpl), &parsed))
			assert.Equal(t, 1, parsed["version"])
		})
	}
}
