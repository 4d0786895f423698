package notifdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookline/nchook/internal/notifdb"
	"github.com/hookline/nchook/internal/testutil"
)

func openFixture(t *testing.T, f *testutil.NotifDB) *notifdb.DB {
	t.Helper()
	db, err := notifdb.Open(f.Path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestValidatePassesOnExpectedSchema(t *testing.T) {
	f := testutil.NewNotifDB(t)
	f.InsertRecord(1, "com.microsoft.teams2", "ping", "hello")

	db := openFixture(t, f)
	require.NoError(t, db.Validate(context.Background()))
}

func TestValidateRejectsForeignSchema(t *testing.T) {
	// A database missing the record/app tables is not a notification store.
	f := testutil.NewNotifDB(t)
	db, err := notifdb.Open(f.Path + "-elsewhere")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.Error(t, db.Validate(context.Background()))
}

func TestReadNewReturnsOnlyRecordsPastCursor(t *testing.T) {
	f := testutil.NewNotifDB(t)
	f.InsertRecord(10, "com.microsoft.teams2", "old", "seen already")
	f.InsertRecord(11, "com.apple.mail", "newer", "first unseen")
	f.InsertRecord(12, "com.microsoft.teams2", "newest", "second unseen")

	db := openFixture(t, f)
	records, maxID, err := db.ReadNew(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, int64(12), maxID)
	require.Len(t, records, 2)
	assert.Equal(t, int64(11), records[0].RecID)
	assert.Equal(t, "com.apple.mail", records[0].App)
	assert.Equal(t, int64(12), records[1].RecID)
}

func TestReadNewEmptyStore(t *testing.T) {
	f := testutil.NewNotifDB(t)

	db := openFixture(t, f)
	records, maxID, err := db.ReadNew(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int64(0), maxID)
}

func TestReadNewReportsRegressedMaxAfterPurge(t *testing.T) {
	f := testutil.NewNotifDB(t)
	f.InsertRecord(5000, "com.microsoft.teams2", "pre-purge", "x")

	db := openFixture(t, f)

	f.Purge()
	f.InsertRecord(100, "com.microsoft.teams2", "post-purge", "y")

	// With the stale cursor the batch is empty but maxID exposes the purge;
	// the loop resets to 0 and re-reads.
	records, maxID, err := db.ReadNew(context.Background(), 5000)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int64(100), maxID)

	records, maxID, err = db.ReadNew(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(100), records[0].RecID)
	assert.Equal(t, int64(100), maxID)
}

func TestReadOnlyHandleCannotWrite(t *testing.T) {
	f := testutil.NewNotifDB(t)
	f.InsertRecord(1, "com.microsoft.teams2", "a", "b")

	db := openFixture(t, f)
	require.NoError(t, db.Validate(context.Background()))

	// The handle is opened with mode=ro; fixture writes still land because
	// they go through the fixture's own writable connection.
	f.InsertRecord(2, "com.microsoft.teams2", "c", "d")
	records, _, err := db.ReadNew(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].RecID)
}
