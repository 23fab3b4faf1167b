package database

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Unreachable(t *testing.T) {
	_, err := New("postgres", "host=127.0.0.1 port=1 dbname=none sslmode=disable connect_timeout=1")
	assert.ErrorContains(t, err, "unreachable")
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New("nosuchdriver", "")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	dsn := os.Getenv("GAMING_BILLING_TEST_DSN")
	if dsn == "" {
		t.Skip("GAMING_BILLING_TEST_DSN not set")
	}

	db, err := New("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Reset())
	require.NoError(t, db.Migrate())
	// migrations are idempotent
	require.NoError(t, db.Migrate())

	_, err = db.Exec(`INSERT INTO operations (id, timestamp, service, resource, verb, method, path)
		VALUES ('6f1d0c1e-8a53-4e4f-9a43-4a0a5d1c2b3e', NOW(), 'game', 'holders', 'list', 'GET', '/api/currencies/holders/?')`)
	require.NoError(t, err)

	require.NoError(t, db.CleanData())
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM operations`).Scan(&n))
	assert.Zero(t, n)
}
