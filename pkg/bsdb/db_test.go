package bsdb

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nainya/bsdb/common"
	"github.com/nainya/bsdb/internal/config"
	"github.com/stretchr/testify/require"
)

func testConfig(order int) *config.Config {
	cfg := config.Default()
	cfg.TreeOrder = order
	cfg.CacheBytes = config.MinCacheBytes
	return cfg
}

func TestOpenInsertGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "round-trip.bsdb")
	db, err := Open(path, testConfig(5))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Insert(1, "one"))
	require.NoError(t, db.Insert(2, "two"))

	value, found, err := db.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "one", value)

	require.EqualValues(t, 2, db.Size())
}

func TestInsertDuplicateRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.bsdb")
	db, err := Open(path, testConfig(5))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Insert(1, "a"))
	err = db.Insert(1, "b")
	require.ErrorIs(t, err, common.ErrDuplicateKey)
}

func TestUpdateAndErase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update-erase.bsdb")
	db, err := Open(path, testConfig(5))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Insert(1, "a"))
	require.NoError(t, db.Update(1, "b"))

	value, found, err := db.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "b", value)

	require.NoError(t, db.Erase(1))
	_, found, err = db.Get(1)
	require.NoError(t, err)
	require.False(t, found)
}

func TestInsertAutoAssignsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auto.bsdb")
	db, err := Open(path, testConfig(5))
	require.NoError(t, err)
	defer db.Close()

	k1, err := db.InsertAuto("a")
	require.NoError(t, err)
	k2, err := db.InsertAuto("b")
	require.NoError(t, err)
	require.Equal(t, uint64(0), k1)
	require.Equal(t, uint64(1), k2)
}

func TestIterationOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iter.bsdb")
	db, err := Open(path, testConfig(5))
	require.NoError(t, err)
	defer db.Close()

	for _, k := range []uint64{30, 10, 20, 50, 40} {
		require.NoError(t, db.Insert(k, fmt.Sprintf("v%d", k)))
	}

	var got []uint64
	key, _, found, err := db.First()
	require.NoError(t, err)
	for found {
		got = append(got, key)
		key, _, found, err = db.Next()
		require.NoError(t, err)
	}
	require.Equal(t, []uint64{10, 20, 30, 40, 50}, got)
}

func TestReopenPersistsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.bsdb")
	db, err := Open(path, testConfig(5))
	require.NoError(t, err)
	require.NoError(t, db.Insert(1, "one"))
	require.NoError(t, db.Close())

	db2, err := Open(path, testConfig(5))
	require.NoError(t, err)
	defer db2.Close()

	value, found, err := db2.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "one", value)
}

func TestClosedDatabaseRejectsOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.bsdb")
	db, err := Open(path, testConfig(5))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close()) // idempotent

	err = db.Insert(1, "a")
	require.ErrorIs(t, err, common.ErrClosed)
}

func TestReadOnlyRejectsMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readonly.bsdb")
	db, err := Open(path, testConfig(5))
	require.NoError(t, err)
	require.NoError(t, db.Insert(1, "a"))
	require.NoError(t, db.Close())

	roCfg := testConfig(5)
	roCfg.ReadOnly = true
	roDB, err := Open(path, roCfg)
	require.NoError(t, err)
	defer roDB.Close()

	err = roDB.Insert(2, "b")
	require.ErrorIs(t, err, common.ErrReadOnly)
}

func TestStatsAndHitRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.bsdb")
	db, err := Open(path, testConfig(5))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Insert(1, "a"))
	_, _, err = db.Get(1)
	require.NoError(t, err)

	require.Greater(t, db.Stats(0), uint64(0)) // StatRequests
	require.GreaterOrEqual(t, db.HitRate(), 0.0)
	require.NotNil(t, db.Metrics())
}
