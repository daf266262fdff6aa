//go:build dbintegration

package authority

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a real MySQL instance:
//
//	FIELDTALLY_TEST_MYSQL_DSN="root:root@tcp(127.0.0.1:3306)/fieldtally_test?parseTime=true" \
//	  go test -tags dbintegration ./internal/authority/
func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("FIELDTALLY_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("FIELDTALLY_TEST_MYSQL_DSN not set")
	}

	store, err := Open(context.Background(), Config{DSN: dsn, DuplicateWindow: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCommitBatch_AllOrNothing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sessionID := uuid.NewString()

	batch := []Incoming{
		{LocalID: uuid.NewString(), ItemName: "Drill", ItemType: "tool", Category: "monthly", AssetNumber: 1, Outcome: "pass", Frequency: "12-monthly"},
		{LocalID: uuid.NewString(), ItemName: "Grinder", ItemType: "tool", Category: "monthly", AssetNumber: 2, Outcome: "fail", ReasonCode: "earth_continuity", Frequency: "12-monthly"},
	}

	accepted, err := store.CommitBatch(ctx, sessionID, batch)
	require.NoError(t, err)
	require.Len(t, accepted, 2)

	rows, err := store.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// A bad row rejects the entire batch before anything is written.
	sessionID2 := uuid.NewString()
	bad := []Incoming{
		{LocalID: uuid.NewString(), ItemName: "Saw", ItemType: "tool", Category: "monthly", AssetNumber: 1, Outcome: "pass"},
		{LocalID: uuid.NewString(), ItemName: "", ItemType: "tool", Category: "monthly", AssetNumber: 2, Outcome: "pass"},
	}
	_, err = store.CommitBatch(ctx, sessionID2, bad)
	require.Error(t, err)

	rows, err = store.ListBySession(ctx, sessionID2)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCommitBatch_DuplicateWindowCoalesces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sessionID := uuid.NewString()

	first := []Incoming{
		{LocalID: uuid.NewString(), ItemName: "Kettle", ItemType: "appliance", Location: "Kitchen", Category: "monthly", AssetNumber: 1, Outcome: "pass"},
	}
	accepted, err := store.CommitBatch(ctx, sessionID, first)
	require.NoError(t, err)
	require.Len(t, accepted, 1)

	// Same tuple again within the window coalesces onto the first row.
	second := []Incoming{
		{LocalID: uuid.NewString(), ItemName: "Kettle", ItemType: "appliance", Location: "Kitchen", Category: "monthly", AssetNumber: 2, Outcome: "pass"},
	}
	again, err := store.CommitBatch(ctx, sessionID, second)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, accepted[0].ID, again[0].ID)
	assert.Equal(t, accepted[0].AssetNumber, again[0].AssetNumber)

	rows, err := store.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDeleteSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sessionID := uuid.NewString()

	_, err := store.CommitBatch(ctx, sessionID, []Incoming{
		{LocalID: uuid.NewString(), ItemName: "Lamp", ItemType: "appliance", Category: "monthly", AssetNumber: 5, Outcome: "pass"},
	})
	require.NoError(t, err)

	n, err := store.DeleteSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := store.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Deleting again is a no-op.
	n, err = store.DeleteSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
