package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsManagerDocumentDetectsSchedulersKey(t *testing.T) {
	require.True(t, IsManagerDocument([]byte("schedulers:\n  - name: a\n    config_file: a.yaml\n")))
	require.False(t, IsManagerDocument(validSchedulerYAML()))
}

func TestParseManagerConfigDefaults(t *testing.T) {
	doc := []byte(`
schedulers:
  - name: east
    config_file: east.yaml
  - name: west
    enabled: false
    type: custom_scheduler
    config_file: west.yaml
`)
	entries, err := ParseManagerConfig(doc)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, "east", entries[0].Name)
	require.True(t, entries[0].Enabled)
	require.Equal(t, "default_scheduler", entries[0].Type)

	require.Equal(t, "west", entries[1].Name)
	require.False(t, entries[1].Enabled)
	require.Equal(t, "custom_scheduler", entries[1].Type)
}

func TestParseManagerConfigRejectsDuplicateNames(t *testing.T) {
	doc := []byte(`
schedulers:
  - name: dup
    config_file: a.yaml
  - name: dup
    config_file: b.yaml
`)
	_, err := ParseManagerConfig(doc)
	require.Error(t, err)
}

func TestParseManagerConfigRequiresAtLeastOneScheduler(t *testing.T) {
	_, err := ParseManagerConfig([]byte("schedulers: []\n"))
	require.Error(t, err)
}

func TestParseManagerConfigRequiresConfigFile(t *testing.T) {
	doc := []byte(`
schedulers:
  - name: a
`)
	_, err := ParseManagerConfig(doc)
	require.Error(t, err)
}
