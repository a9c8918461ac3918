package datastore

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

var memoryDBCounter atomic.Uint64

// NewTestManager returns an initialized in-memory SQLite store that is closed
// when the test finishes. Each call gets its own database.
func NewTestManager(tb testing.TB) *SQLiteManager {
	tb.Helper()

	name := fmt.Sprintf("file:alertwatch_test_%d?mode=memory&cache=shared&_foreign_keys=ON", memoryDBCounter.Add(1))
	m, err := NewSQLiteManager(name, nil)
	require.NoError(tb, err)
	require.NoError(tb, m.Initialize())

	tb.Cleanup(func() { _ = m.Close() })
	return m
}
