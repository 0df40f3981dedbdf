package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfigListsSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ledger:
  backend: memory
sites:
  - name: jiji
    strategy: static
    baseUrl: https://jiji.ng
    pages:
      - name: abuja-cars
        url: https://jiji.ng/abuja/cars
      - name: gwarinpa-cars
        url: https://jiji.ng/gwarinpa/cars
`), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"check-config", "--config", path})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath = ""
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "ledger: memory")
	assert.Contains(t, out.String(), "source jiji/abuja-cars -> https://jiji.ng")
	assert.Contains(t, out.String(), "source jiji/gwarinpa-cars -> https://jiji.ng")
}

func TestCheckConfigRejectsUnknownStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sites:
  - name: jiji
    strategy: telepathy
    pages:
      - url: https://jiji.ng/abuja/cars
`), 0o600))

	rootCmd.SetArgs([]string{"check-config", "--config", path})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath = ""
	})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Strategy")
}

func TestRootHelpStatesDeliveryGuarantee(t *testing.T) {
	assert.NotContains(t, rootCmd.Long, "exactly once")
	assert.Contains(t, rootCmd.Long, "barring a crash between send and ledger commit")
}
