package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestField_TriStateJSON(t *testing.T) {
	var p OutcomePatch
	require.NoError(t, json.Unmarshal([]byte(`{"care_sought":false,"notes":null}`), &p))

	assert.True(t, p.CareSought.IsSet(), "present false must be set")
	assert.False(t, p.CareSought.Value())
	assert.True(t, p.Notes.IsClear(), "null must clear")
	assert.False(t, p.Resolved.Present(), "missing key must stay absent")
	assert.False(t, p.CareTimeHours.Present())
}

func TestField_Apply(t *testing.T) {
	v := "old"
	dst := &v

	Field[string]{}.Apply(&dst)
	require.NotNil(t, dst)
	assert.Equal(t, "old", *dst)

	Set("new").Apply(&dst)
	require.NotNil(t, dst)
	assert.Equal(t, "new", *dst)

	Clear[string]().Apply(&dst)
	assert.Nil(t, dst)
}

func TestField_Raw(t *testing.T) {
	_, ok := Field[int]{}.Raw()
	assert.False(t, ok)

	v, ok := Set(3).Raw()
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = Clear[int]().Raw()
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestField_InvalidJSON(t *testing.T) {
	var p OutcomePatch
	err := json.Unmarshal([]byte(`{"care_time_hours":"soon"}`), &p)
	assert.Error(t, err)
}

func TestTriageInput_PresentAndTrue(t *testing.T) {
	in := TriageInput{LowMood: boolPtr(false), PelvicPain: boolPtr(true)}

	assert.True(t, in.Present(KeyLowMood))
	assert.False(t, in.IsTrue(KeyLowMood))
	assert.True(t, in.Present(AggregateMoodCore))
	assert.True(t, in.Present(AggregatePelvicFloorAny))
	assert.True(t, in.IsTrue(KeyPelvicPain))
	assert.False(t, in.Present(KeyAnhedonia))
	assert.False(t, in.Present("no_such_key"))
	assert.False(t, in.IsTrue("no_such_key"))
}

func TestTriageInput_Inconsistency(t *testing.T) {
	var in TriageInput
	assert.Equal(t, InconsistencyNone, in.Inconsistency())

	bogus := InconsistencyLevel("SOMEWHAT")
	in.InconsistencyLevel = &bogus
	assert.Equal(t, InconsistencyNone, in.Inconsistency())

	major := InconsistencyMajor
	in.InconsistencyLevel = &major
	assert.Equal(t, InconsistencyMajor, in.Inconsistency())
}

func TestBoolKeys_AllResolvable(t *testing.T) {
	in := TriageInput{}
	for _, k := range BoolKeys() {
		assert.True(t, IsPresenceKey(k), "key %s", k)
		assert.False(t, in.Present(k), "empty input should not have %s", k)
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := NewError(ErrCaseNotFound, "case abc not found")
	wrapped := fmt.Errorf("patch outcome: %w", err)

	assert.True(t, errors.Is(wrapped, ErrCaseNotFound))
	assert.False(t, errors.Is(wrapped, ErrStoreWrite))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
}

func TestError_WrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(ErrStoreWrite, cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsStorage(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestCaseRecord_SnapshotCopiesOutcome(t *testing.T) {
	rec := CaseRecord{Outcome: &Outcome{UpdatedBy: "a"}, Workflow: Workflow{Status: StatusNew}}
	snap := rec.Snapshot()
	rec.Outcome.UpdatedBy = "b"

	require.NotNil(t, snap.Outcome)
	assert.Equal(t, "a", snap.Outcome.UpdatedBy)
}
