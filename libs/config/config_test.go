package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntAndDuration(t *testing.T) {
	t.Setenv("DOCSLOT_TEST_INT", "42")
	t.Setenv("DOCSLOT_TEST_DUR", "90s")

	n, err := Int("DOCSLOT_TEST_INT", 1)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	d, err := Duration("DOCSLOT_TEST_DUR", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	n, err = Int("DOCSLOT_TEST_MISSING", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	t.Setenv("DOCSLOT_TEST_INT", "abc")
	_, err = Int("DOCSLOT_TEST_INT", 1)
	assert.Error(t, err)
}

func TestFloat(t *testing.T) {
	t.Setenv("DOCSLOT_TEST_RATIO", "0.25")
	f, err := Float("DOCSLOT_TEST_RATIO", 1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.25, f)

	f, err = Float("DOCSLOT_TEST_RATIO_UNSET", 1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f)

	t.Setenv("DOCSLOT_TEST_RATIO", "1.5")
	_, err = Float("DOCSLOT_TEST_RATIO", 1, 0, 1)
	assert.Error(t, err)
}

func TestPort(t *testing.T) {
	t.Setenv("DOCSLOT_TEST_PORT", "70000")
	_, err := Port("DOCSLOT_TEST_PORT", "8080")
	assert.Error(t, err)

	p, err := Port("DOCSLOT_TEST_PORT_UNSET", "8080")
	require.NoError(t, err)
	assert.Equal(t, "8080", p)
}

func TestListAndBool(t *testing.T) {
	t.Setenv("DOCSLOT_TEST_LIST", " a, ,b ,c")
	assert.Equal(t, []string{"a", "b", "c"}, List("DOCSLOT_TEST_LIST"))

	t.Setenv("DOCSLOT_TEST_BOOL", "false")
	assert.False(t, Bool("DOCSLOT_TEST_BOOL", true))
	t.Setenv("DOCSLOT_TEST_BOOL", "nope")
	assert.True(t, Bool("DOCSLOT_TEST_BOOL", true))
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DOCSLOT_TEST_A=from-file\nDOCSLOT_TEST_B=from-file\n"), 0o600))

	t.Setenv("DOCSLOT_TEST_A", "from-env")
	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	t.Cleanup(func() { _ = os.Unsetenv("DOCSLOT_TEST_B") })

	assert.Equal(t, "from-env", os.Getenv("DOCSLOT_TEST_A"))
	assert.Equal(t, "from-file", os.Getenv("DOCSLOT_TEST_B"))
}

func TestLocation(t *testing.T) {
	loc, err := Location("DOCSLOT_TEST_TZ_UNSET", "UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	t.Setenv("DOCSLOT_TEST_TZ", "Not/AZone")
	_, err = Location("DOCSLOT_TEST_TZ", "UTC")
	assert.Error(t, err)
}
