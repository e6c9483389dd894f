package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCatalog = `
providers:
  - name: openai
    models:
      - name: gpt-4o
        rank: 1
        description: strongest model
        rpm_allowed: 500
        tpm_total: 300000
        rpd_total: 10000
        tpd_total: 3000000
      - name: gpt-4o-mini
        rank: 3
        enabled: false
        rpm_allowed: 1000
        tpm_total: 600000
        rpd_total: 30000
        tpd_total: 10000000
  - name: gemini
    models:
      - name: gemini-1.5-flash
        rank: 2
        rpm_allowed: 1000
        tpm_total: 1000000
        rpd_total: 50000
        tpd_total: 10000000
`

func TestParseCatalog(t *testing.T) {
	t.Run("valid catalog", func(t *testing.T) {
		result, err := ParseCatalog([]byte(validCatalog))
		require.NoError(t, err)
		require.Len(t, result, 3)

		assert.Equal(t, "gpt-4o", result[0].Name)
		assert.Equal(t, "openai", result[0].Provider)
		assert.Equal(t, 1, result[0].Rank)
		assert.True(t, result[0].Enabled)
		assert.Equal(t, 500, result[0].RPMAllowed)

		// explicit enabled: false is honoured
		assert.Equal(t, "gpt-4o-mini", result[1].Name)
		assert.False(t, result[1].Enabled)

		// enabled defaults to true when omitted
		assert.Equal(t, "gemini-1.5-flash", result[2].Name)
		assert.Equal(t, "gemini", result[2].Provider)
		assert.True(t, result[2].Enabled)
	})

	t.Run("invalid YAML", func(t *testing.T) {
		_, err := ParseCatalog([]byte("providers: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("empty catalog", func(t *testing.T) {
		_, err := ParseCatalog([]byte("providers: []"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no models")
	})

	t.Run("duplicate model name across providers", func(t *testing.T) {
		data := `
providers:
  - name: openai
    models:
      - name: shared
        rpm_allowed: 1
        tpm_total: 1
        rpd_total: 1
        tpd_total: 1
  - name: gemini
    models:
      - name: shared
        rpm_allowed: 1
        tpm_total: 1
        rpd_total: 1
        tpd_total: 1
`
		_, err := ParseCatalog([]byte(data))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate model name")
	})

	t.Run("negative quota ceiling", func(t *testing.T) {
		data := `
providers:
  - name: openai
    models:
      - name: broken
        rpm_allowed: -1
        tpm_total: 100
        rpd_total: 100
        tpd_total: 100
`
		_, err := ParseCatalog([]byte(data))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "negative quota ceiling")
	})

	t.Run("empty provider name", func(t *testing.T) {
		data := `
providers:
  - name: ""
    models:
      - name: orphan
`
		_, err := ParseCatalog([]byte(data))
		assert.Error(t, err)
	})

	t.Run("empty model name", func(t *testing.T) {
		data := `
providers:
  - name: openai
    models:
      - rank: 1
`
		_, err := ParseCatalog([]byte(data))
		assert.Error(t, err)
	})
}

func TestLoadCatalog(t *testing.T) {
	t.Run("loads from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte(validCatalog), 0o600))

		result, err := LoadCatalog(path)
		require.NoError(t, err)
		assert.Len(t, result, 3)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCatalog("/does/not/exist.yaml")
		assert.Error(t, err)
	})
}
