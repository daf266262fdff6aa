package resultstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtally/fieldtally/pkg/numbering"
)

func addInput(sessionID, name, frequency string) AddInput {
	return AddInput{
		SessionID: sessionID,
		ItemName:  name,
		ItemType:  "appliance",
		Location:  "Workshop",
		Frequency: frequency,
		Outcome:   OutcomePass,
	}
}

func mustAdd(t *testing.T, db *sql.DB, in AddInput) PendingResult {
	t.Helper()
	r, coalesced, err := AddResult(context.Background(), db, in, 0)
	require.NoError(t, err)
	require.False(t, coalesced)
	return r
}

func TestAddResult_SequencesBothRanges(t *testing.T) {
	ctx, db := openTestStore(t)
	sessionID := newSession(t, ctx, db)

	a := mustAdd(t, db, addInput(sessionID, "Kettle", "12-monthly"))
	b := mustAdd(t, db, addInput(sessionID, "Toaster", "6-monthly"))
	c := mustAdd(t, db, addInput(sessionID, "RCD Unit", "five-yearly"))

	assert.Equal(t, 1, a.AssetNumber)
	assert.Equal(t, numbering.CategoryMonthly, a.Category)
	assert.Equal(t, 2, b.AssetNumber)
	assert.Equal(t, 10001, c.AssetNumber)
	assert.Equal(t, numbering.CategoryFiveYearly, c.Category)
}

// Walks the full override flow: sequential issue, a manual jump to 50,
// then allocation continuing from 51.
func TestAddResult_ManualOverrideAdvancesSequence(t *testing.T) {
	ctx, db := openTestStore(t)
	sessionID := newSession(t, ctx, db)

	mustAdd(t, db, addInput(sessionID, "Kettle", "12-monthly"))
	mustAdd(t, db, addInput(sessionID, "Toaster", "12-monthly"))
	mustAdd(t, db, addInput(sessionID, "RCD Unit", "five-yearly"))

	manual := addInput(sessionID, "Tagged Drill", "12-monthly")
	manual.AssetNumber = 50
	r := mustAdd(t, db, manual)
	assert.Equal(t, 50, r.AssetNumber)

	next := mustAdd(t, db, addInput(sessionID, "Grinder", "12-monthly"))
	assert.Equal(t, 51, next.AssetNumber)

	// The five-yearly sequence is untouched by the monthly override.
	fy := mustAdd(t, db, addInput(sessionID, "Sub Board", "5-yearly"))
	assert.Equal(t, 10002, fy.AssetNumber)
}

func TestAddResult_ManualOverrideCollision(t *testing.T) {
	ctx, db := openTestStore(t)
	sessionID := newSession(t, ctx, db)

	mustAdd(t, db, addInput(sessionID, "Kettle", "12-monthly"))

	dup := addInput(sessionID, "Toaster", "12-monthly")
	dup.AssetNumber = 1
	_, _, err := AddResult(context.Background(), db, dup, 0)
	require.Error(t, err)

	var valErr *numbering.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, 1, valErr.Number)
}

func TestAddResult_OverrideReservedAfterOwnerRemoved(t *testing.T) {
	ctx, db := openTestStore(t)
	sessionID := newSession(t, ctx, db)

	manual := addInput(sessionID, "Tagged Drill", "12-monthly")
	manual.AssetNumber = 7
	r := mustAdd(t, db, manual)

	require.NoError(t, Remove(context.Background(), db, r.LocalID))

	// 7 stays reserved for the whole session.
	again := addInput(sessionID, "Grinder", "12-monthly")
	again.AssetNumber = 7
	_, _, err := AddResult(context.Background(), db, again, 0)
	require.Error(t, err)

	var valErr *numbering.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Reason, "manual entry")
}

func TestAddResult_CoalescedDuplicateConsumesNoNumber(t *testing.T) {
	ctx, db := openTestStore(t)
	sessionID := newSession(t, ctx, db)

	in := addInput(sessionID, "Kettle", "12-monthly")
	first := mustAdd(t, db, in)

	// Double tap: same tuple immediately again.
	second, coalesced, err := AddResult(context.Background(), db, in, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, coalesced)
	assert.Equal(t, first.LocalID, second.LocalID)

	// A genuinely new item gets 2, not 3.
	other := mustAdd(t, db, addInput(sessionID, "Toaster", "12-monthly"))
	assert.Equal(t, 2, other.AssetNumber)
}

func TestAddResult_FailureNeedsDetail(t *testing.T) {
	ctx, db := openTestStore(t)
	sessionID := newSession(t, ctx, db)

	in := addInput(sessionID, "Kettle", "12-monthly")
	in.Outcome = OutcomeFail
	_, _, err := AddResult(context.Background(), db, in, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure detail")

	in.Failure = &FailureDetail{ReasonCode: "insulation_resistance", RemedialWork: "replace lead"}
	r := mustAdd(t, db, in)
	require.NotNil(t, r.Failure)
	assert.Equal(t, "insulation_resistance", r.Failure.ReasonCode)
}

func TestAddResult_UnknownFrequency(t *testing.T) {
	ctx, db := openTestStore(t)
	sessionID := newSession(t, ctx, db)

	in := addInput(sessionID, "Kettle", "weekly")
	_, _, err := AddResult(context.Background(), db, in, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frequency")
}

func TestAddResult_ClosedSession(t *testing.T) {
	ctx, db := openTestStore(t)
	sessionID := newSession(t, ctx, db)
	require.NoError(t, Clear(context.Background(), db, sessionID, SessionCancelled))

	_, _, err := AddResult(context.Background(), db, addInput(sessionID, "Kettle", "12-monthly"), 0)
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestRenumber(t *testing.T) {
	ctx, db := openTestStore(t)
	sessionID := newSession(t, ctx, db)

	r := mustAdd(t, db, addInput(sessionID, "Kettle", "12-monthly"))
	mustAdd(t, db, addInput(sessionID, "Toaster", "12-monthly"))

	updated, err := Renumber(context.Background(), db, r.LocalID, 40)
	require.NoError(t, err)
	assert.Equal(t, 40, updated.AssetNumber)

	// The override advances the monthly sequence past 40.
	next := mustAdd(t, db, addInput(sessionID, "Grinder", "12-monthly"))
	assert.Equal(t, 41, next.AssetNumber)

	// Cross-range numbers are rejected as validation failures.
	var valErr *numbering.ValidationError
	_, err = Renumber(context.Background(), db, r.LocalID, 10005)
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Reason, "five_yearly range")

	// The reserved boundary number belongs to neither range.
	_, err = Renumber(context.Background(), db, r.LocalID, 10000)
	require.ErrorAs(t, err, &valErr)

	// Taken numbers are rejected.
	_, err = Renumber(context.Background(), db, r.LocalID, 2)
	require.ErrorAs(t, err, &valErr)

	// Renumbering onto its own number is a no-op, not a collision.
	updated, err = Renumber(context.Background(), db, r.LocalID, 40)
	require.NoError(t, err)
	assert.Equal(t, 40, updated.AssetNumber)
}

func TestReassign_CategorySwitchAllocatesFreshNumber(t *testing.T) {
	ctx, db := openTestStore(t)
	sessionID := newSession(t, ctx, db)

	r := mustAdd(t, db, addInput(sessionID, "Sub Board", "12-monthly"))
	mustAdd(t, db, addInput(sessionID, "Toaster", "12-monthly"))
	require.Equal(t, 1, r.AssetNumber)

	updated, err := Reassign(context.Background(), db, r.LocalID, "five-yearly")
	require.NoError(t, err)
	assert.Equal(t, numbering.CategoryFiveYearly, updated.Category)
	assert.Equal(t, 10001, updated.AssetNumber)
	assert.Equal(t, "five-yearly", updated.Frequency)

	// The monthly sequence continues past the freed number; 1 is only
	// reachable again as a manual entry.
	next := mustAdd(t, db, addInput(sessionID, "Lamp", "12-monthly"))
	assert.Equal(t, 3, next.AssetNumber)

	manual := addInput(sessionID, "Heater", "12-monthly")
	manual.AssetNumber = 1
	re := mustAdd(t, db, manual)
	assert.Equal(t, 1, re.AssetNumber)
}

func TestReassign_SameCategoryKeepsNumber(t *testing.T) {
	ctx, db := openTestStore(t)
	sessionID := newSession(t, ctx, db)

	r := mustAdd(t, db, addInput(sessionID, "Kettle", "12-monthly"))

	updated, err := Reassign(context.Background(), db, r.LocalID, "6-monthly")
	require.NoError(t, err)
	assert.Equal(t, r.AssetNumber, updated.AssetNumber)
	assert.Equal(t, "6-monthly", updated.Frequency)
}
