package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInt(t *testing.T) {
	t.Setenv("WS_MAX_CONNECTIONS", " 250 ")
	assert.Equal(t, 250, GetInt("WS_MAX_CONNECTIONS", 10))

	t.Setenv("WS_MAX_CONNECTIONS", "many")
	assert.Equal(t, 10, GetInt("WS_MAX_CONNECTIONS", 10))

	assert.Equal(t, 10, GetInt("WS_UNSET_FOR_TEST", 10))
}

func TestGetDuration(t *testing.T) {
	t.Setenv("CALL_STALE_AFTER", "45s")
	assert.Equal(t, 45*time.Second, GetDuration("CALL_STALE_AFTER", time.Second))

	t.Setenv("CALL_STALE_AFTER", "0")
	assert.Zero(t, GetDuration("CALL_STALE_AFTER", time.Second))

	t.Setenv("CALL_STALE_AFTER", "45")
	assert.Equal(t, time.Second, GetDuration("CALL_STALE_AFTER", time.Second))
}

func TestGetBool(t *testing.T) {
	t.Setenv("APNS_PRODUCTION", "true")
	assert.True(t, GetBool("APNS_PRODUCTION", false))

	t.Setenv("APNS_PRODUCTION", "sometimes")
	assert.False(t, GetBool("APNS_PRODUCTION", false))
}

func TestGetStringSlice(t *testing.T) {
	t.Setenv("CASSANDRA_HOSTS", "cass-1, ,cass-2,")
	assert.Equal(t, []string{"cass-1", "cass-2"}, GetStringSlice("CASSANDRA_HOSTS", nil))

	t.Setenv("CASSANDRA_HOSTS", " , ")
	assert.Equal(t, []string{"localhost"}, GetStringSlice("CASSANDRA_HOSTS", []string{"localhost"}))
}

func TestGetStringFromFile(t *testing.T) {
	t.Setenv("DB_PASSWORD", "from-env")
	assert.Equal(t, "from-env", GetStringFromFile("DB_PASSWORD", ""))

	path := filepath.Join(t.TempDir(), "db_password")
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))
	t.Setenv("DB_PASSWORD_FILE", path)
	assert.Equal(t, "s3cret", GetStringFromFile("DB_PASSWORD", ""))

	t.Setenv("DB_PASSWORD_FILE", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, "from-env", GetStringFromFile("DB_PASSWORD", ""))
}
