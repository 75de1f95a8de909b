package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = $1 AND y = $12 AND z = '$'`
	assert.Equal(t, `SELECT a FROM t WHERE x = ? AND y = ? AND z = '$'`, DialectSQLite.rebind(q))
	assert.Equal(t, q, DialectPostgres.rebind(q))
}
