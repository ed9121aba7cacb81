package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	HotelID  string `json:"hotel_id"`
	Username string `json:"username"`
	Debug    bool   `json:"debug"`
	TTL      int    `json:"cache_ttl_seconds"`
}

func TestLocalName(t *testing.T) {
	require.Equal(t, filepath.Join("conf", "config.local.json5"), LocalName(filepath.Join("conf", "config.json5")))
	require.Equal(t, "otelms.local.json5", LocalName("otelms.json5"))
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")

	_, err := ReadConfig[testConfig](name)
	require.ErrorIs(t, err, os.ErrNotExist)

	err = os.WriteFile(name, []byte(`{
		// hotel subdomain
		hotel_id: "demo",
		username: "frontdesk",
		cache_ttl_seconds: 3600,
	}`), 0666)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(testConfig{HotelID: "demo", Username: "frontdesk", TTL: 3600}, cfg))

	err = os.WriteFile(LocalName(name), []byte(`{username: "night-audit", debug: true}`), 0666)
	require.NoError(t, err)

	cfg, err = ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(testConfig{HotelID: "demo", Username: "night-audit", Debug: true, TTL: 3600}, cfg))
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(root, "otelms.json5"), []byte(`{hotel_id: "up"}`), 0666))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	defer os.Chdir(wd)

	cfg, err := ReadRecursively[testConfig]("otelms.json5")
	require.NoError(t, err)
	require.Equal(t, "up", cfg.HotelID)
}
