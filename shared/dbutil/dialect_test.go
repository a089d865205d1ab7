package dbutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloudvault/vaultd/shared/dbutil"
)

func TestDialectForDriver(t *testing.T) {
	assert.Equal(t, dbutil.SQLite, dbutil.DialectForDriver("sqlite3"))
	assert.Equal(t, dbutil.Other, dbutil.DialectForDriver("postgres"))
	assert.Equal(t, dbutil.Other, dbutil.DialectForDriver("unknown-dialect"))
}
