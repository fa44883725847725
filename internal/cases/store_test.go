package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/muzzaleeni/qwazi/internal/domain"
	"github.com/muzzaleeni/qwazi/internal/store"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "cases.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, zerolog.Nop(), opts)
}

func sampleDecision() domain.DecisionResult {
	return domain.DecisionResult{
		Level:          domain.LevelUrgent,
		Rationale:      []string{"Score 4 meets urgent threshold 4"},
		ScoreBreakdown: domain.ScoreBreakdown{DomainA: 4, Total: 4},
		Confidence:     domain.ConfidenceTrace{Bucket: domain.ConfidenceHigh, PerInputPresence: map[string]bool{"mood_core": true}},
		Uncertainty:    domain.UncertaintyTrace{Reasons: []domain.ReasonCode{}},
		ActionPlan:     domain.ActionPlan{Level: domain.LevelUrgent, PrimaryRoute: domain.RouteMentalHealthCrisis, Timeframe: domain.TimeframeToday},
		RuleSetVersion: "test-1",
	}
}

func mustCreate(t *testing.T, s *Store) domain.CaseRecord {
	t.Helper()
	rec, err := s.CreateCase(context.Background(), sampleDecision(), domain.CaseMeta{Source: "test"})
	require.NoError(t, err)
	return rec
}

func outcomePatch(t *testing.T, doc string) domain.OutcomePatch {
	t.Helper()
	var p domain.OutcomePatch
	require.NoError(t, json.Unmarshal([]byte(doc), &p))
	return p
}

func workflowPatch(t *testing.T, doc string) domain.WorkflowPatch {
	t.Helper()
	var p domain.WorkflowPatch
	require.NoError(t, json.Unmarshal([]byte(doc), &p))
	return p
}

func changeCount(t *testing.T, s *Store, caseID string) int {
	t.Helper()
	events, err := s.ChangesForCase(context.Background(), caseID)
	require.NoError(t, err)
	return len(events)
}

func TestCreateCase(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	rec, err := s.CreateCase(ctx, sampleDecision(), domain.CaseMeta{Source: "web", Locale: "en-GB"})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.CaseID)
	assert.Equal(t, domain.StatusNew, rec.Workflow.Status)
	assert.Nil(t, rec.Outcome)
	assert.Equal(t, "test-1", rec.Meta.RuleSetVersion)
	assert.Equal(t, "system", rec.LastUpdatedBy)

	got, err := s.Get(ctx, rec.CaseID)
	require.NoError(t, err)
	if diff := cmp.Diff(rec.Decision, got.Decision); diff != "" {
		t.Errorf("stored decision differs (-created +stored):\n%s", diff)
	}
}

func TestCreateCase_DistinctIDsForSameDecision(t *testing.T) {
	s := newTestStore(t, Options{})
	a := mustCreate(t, s)
	b := mustCreate(t, s)
	assert.NotEqual(t, a.CaseID, b.CaseID)

	recent, err := s.GetRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestGetRecent_OrderAndClamp(t *testing.T) {
	s := newTestStore(t, Options{DefaultLimit: 2, MaxLimit: 3})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, mustCreate(t, s).CaseID)
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, 2},
		{-7, 2},
		{1, 1},
		{3, 3},
		{1000, 3},
	}
	for _, tt := range tests {
		got, err := s.GetRecent(ctx, tt.limit)
		require.NoError(t, err)
		assert.Len(t, got, tt.want, "limit %d", tt.limit)
	}

	got, err := s.GetRecent(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[4], ids[3], ids[2]}, []string{got[0].CaseID, got[1].CaseID, got[2].CaseID})
}

func TestPatchOutcome(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	rec := mustCreate(t, s)

	res, err := s.PatchOutcome(ctx, rec.CaseID,
		outcomePatch(t, `{"care_sought": true, "care_type": "GP", "care_time_hours": 5.5, "notes": "  saw GP  "}`), "nurse-a")
	require.NoError(t, err)

	assert.Nil(t, res.Before.Outcome)
	require.NotNil(t, res.After.Outcome)
	assert.True(t, *res.After.Outcome.CareSought)
	assert.Equal(t, domain.CareGP, *res.After.Outcome.CareType)
	assert.Equal(t, 5.5, *res.After.Outcome.CareTimeHours)
	assert.Equal(t, "saw GP", *res.After.Outcome.Notes)
	assert.Nil(t, res.After.Outcome.Resolved)
	assert.Equal(t, "nurse-a", res.After.Outcome.UpdatedBy)

	assert.Equal(t, domain.ChangeOutcomeUpdate, res.Change.ChangeType)
	assert.Equal(t, "nurse-a", res.Change.Editor)
	assert.NotEmpty(t, res.Change.Hash)
	assert.JSONEq(t, `{"care_sought":true,"care_type":"GP","care_time_hours":5.5,"notes":"  saw GP  "}`, string(res.Change.Patch),
		"ledger keeps the requested values")

	got, err := s.Get(ctx, rec.CaseID)
	require.NoError(t, err)
	assert.Equal(t, "nurse-a", got.LastUpdatedBy)
	assert.True(t, got.LastUpdatedAt.Equal(res.Change.Timestamp))
	assert.True(t, got.Outcome.UpdatedAt.Equal(res.Change.Timestamp))
	assert.Equal(t, domain.StatusNew, got.Workflow.Status, "workflow untouched by outcome patch")
}

func TestPatchOutcome_TriState(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	rec := mustCreate(t, s)

	_, err := s.PatchOutcome(ctx, rec.CaseID, outcomePatch(t, `{"notes": "first", "resolved": false}`), "a")
	require.NoError(t, err)

	// Absent keys are left alone; null clears.
	res, err := s.PatchOutcome(ctx, rec.CaseID, outcomePatch(t, `{"notes": null}`), "b")
	require.NoError(t, err)
	assert.Equal(t, "first", *res.Before.Outcome.Notes)
	assert.Nil(t, res.After.Outcome.Notes)
	require.NotNil(t, res.After.Outcome.Resolved)
	assert.False(t, *res.After.Outcome.Resolved)
	assert.JSONEq(t, `{"notes":null}`, string(res.Change.Patch))

	// Whitespace-only text is a clear too.
	_, err = s.PatchOutcome(ctx, rec.CaseID, outcomePatch(t, `{"notes": "again"}`), "a")
	require.NoError(t, err)
	res, err = s.PatchOutcome(ctx, rec.CaseID, outcomePatch(t, `{"notes": "   "}`), "a")
	require.NoError(t, err)
	assert.Nil(t, res.After.Outcome.Notes)
	assert.JSONEq(t, `{"notes":"   "}`, string(res.Change.Patch))
}

func TestPatchOutcome_NegativeCareTimeRejected(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	rec := mustCreate(t, s)

	_, err := s.PatchOutcome(ctx, rec.CaseID, outcomePatch(t, `{"care_time_hours": -1}`), "nurse")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNegativeDuration), "got %v", err)
	assert.True(t, domain.IsValidation(err))

	assert.Equal(t, 0, changeCount(t, s, rec.CaseID))
	got, err := s.Get(ctx, rec.CaseID)
	require.NoError(t, err)
	assert.Nil(t, got.Outcome)
}

func TestPatch_ValidationErrors(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	rec := mustCreate(t, s)

	tests := []struct {
		name string
		run  func() error
		want *domain.Error
	}{
		{"empty outcome", func() error {
			_, err := s.PatchOutcome(ctx, rec.CaseID, outcomePatch(t, `{}`), "n")
			return err
		}, domain.ErrEmptyPatch},
		{"unknown care type", func() error {
			_, err := s.PatchOutcome(ctx, rec.CaseID, outcomePatch(t, `{"care_type": "WITCH_DOCTOR"}`), "n")
			return err
		}, domain.ErrInvalidEnum},
		{"notes too long", func() error {
			long := make([]byte, maxNotesLen+1)
			for i := range long {
				long[i] = 'x'
			}
			_, err := s.PatchOutcome(ctx, rec.CaseID, domain.OutcomePatch{Notes: domain.Set(string(long))}, "n")
			return err
		}, domain.ErrValidation},
		{"empty workflow", func() error {
			_, err := s.PatchWorkflow(ctx, rec.CaseID, workflowPatch(t, `{}`), "n")
			return err
		}, domain.ErrEmptyPatch},
		{"unknown status", func() error {
			_, err := s.PatchWorkflow(ctx, rec.CaseID, workflowPatch(t, `{"status": "DONE"}`), "n")
			return err
		}, domain.ErrInvalidEnum},
		{"clear status", func() error {
			_, err := s.PatchWorkflow(ctx, rec.CaseID, workflowPatch(t, `{"status": null}`), "n")
			return err
		}, domain.ErrValidation},
		{"bad timestamp", func() error {
			_, err := s.PatchWorkflow(ctx, rec.CaseID, workflowPatch(t, `{"follow_up_due_at": "next tuesday"}`), "n")
			return err
		}, domain.ErrInvalidTimestamp},
		{"missing editor", func() error {
			_, err := s.PatchWorkflow(ctx, rec.CaseID, workflowPatch(t, `{"status": "CLOSED"}`), "  ")
			return err
		}, domain.ErrMissingEditor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
			assert.True(t, domain.IsValidation(err))
		})
	}
	assert.Equal(t, 0, changeCount(t, s, rec.CaseID))
}

func TestPatch_NotFound(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	_, err := s.PatchWorkflow(ctx, "no-such-case", workflowPatch(t, `{"status": "CLOSED"}`), "n")
	assert.True(t, errors.Is(err, domain.ErrCaseNotFound), "got %v", err)
	assert.True(t, domain.IsNotFound(err))

	_, err = s.PatchOutcome(ctx, "no-such-case", outcomePatch(t, `{"resolved": true}`), "n")
	assert.True(t, domain.IsNotFound(err))

	events, err := s.RecentChanges(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = s.ChangesForCase(ctx, "no-such-case")
	assert.True(t, domain.IsNotFound(err))
}

func TestPatchWorkflow(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	rec := mustCreate(t, s)

	res, err := s.PatchWorkflow(ctx, rec.CaseID, workflowPatch(t,
		`{"status": "IN_PROGRESS", "owner": "midwife-1", "follow_up_due_at": "2026-11-01T09:00:00+01:00"}`), "coordinator")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusNew, res.Before.Workflow.Status)
	assert.Equal(t, domain.StatusInProgress, res.After.Workflow.Status)
	assert.Equal(t, "midwife-1", *res.After.Workflow.Owner)
	require.NotNil(t, res.After.Workflow.FollowUpDueAt)
	assert.Equal(t, "2026-11-01T08:00:00Z", res.After.Workflow.FollowUpDueAt.Format("2006-01-02T15:04:05Z07:00"))
	assert.Nil(t, res.After.Workflow.LastContactAt)
	assert.JSONEq(t, `{"status":"IN_PROGRESS","owner":"midwife-1","follow_up_due_at":"2026-11-01T09:00:00+01:00"}`,
		string(res.Change.Patch))

	// Clearing the owner and due date.
	res, err = s.PatchWorkflow(ctx, rec.CaseID, workflowPatch(t, `{"owner": null, "follow_up_due_at": null}`), "coordinator")
	require.NoError(t, err)
	assert.Nil(t, res.After.Workflow.Owner)
	assert.Nil(t, res.After.Workflow.FollowUpDueAt)
	assert.Equal(t, domain.StatusInProgress, res.After.Workflow.Status)
}

func TestPatchWorkflow_AnyTransitionAllowed(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	rec := mustCreate(t, s)

	for _, status := range []string{"CLOSED", "NEW", "WAITING", "NEW"} {
		res, err := s.PatchWorkflow(ctx, rec.CaseID, workflowPatch(t, fmt.Sprintf(`{"status": %q}`, status)), "coordinator")
		require.NoError(t, err, "transition to %s", status)
		assert.Equal(t, domain.WorkflowStatus(status), res.After.Workflow.Status)
	}
	assert.Equal(t, 4, changeCount(t, s, rec.CaseID))
}

func TestLedgerCaseConsistency(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	a := mustCreate(t, s)
	b := mustCreate(t, s)

	ops := []struct {
		caseID string
		doc    string
		ok     bool
	}{
		{a.CaseID, `{"care_sought": true}`, true},
		{a.CaseID, `{"care_time_hours": -3}`, false},
		{b.CaseID, `{"resolved": true}`, true},
		{"ghost", `{"resolved": true}`, false},
		{a.CaseID, `{}`, false},
		{a.CaseID, `{"care_type": "NONE"}`, true},
		{b.CaseID, `{"care_type": "??"}`, false},
	}

	success := map[string]int{}
	for _, op := range ops {
		_, err := s.PatchOutcome(ctx, op.caseID, outcomePatch(t, op.doc), "n")
		if op.ok {
			require.NoError(t, err, op.doc)
			success[op.caseID]++
		} else {
			require.Error(t, err, op.doc)
		}
	}

	assert.Equal(t, success[a.CaseID], changeCount(t, s, a.CaseID))
	assert.Equal(t, success[b.CaseID], changeCount(t, s, b.CaseID))

	n, err := s.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPatch_StorageFailureLeavesCaseUntouched(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	rec := mustCreate(t, s)

	_, err := s.DB.Exec(`CREATE TRIGGER fail_append BEFORE INSERT ON change_events
BEGIN SELECT RAISE(ABORT, 'ledger unavailable'); END`)
	require.NoError(t, err)

	_, err = s.PatchWorkflow(ctx, rec.CaseID, workflowPatch(t, `{"status": "CLOSED"}`), "coordinator")
	require.Error(t, err)
	assert.True(t, domain.IsStorage(err), "got %v", err)
	assert.True(t, errors.Is(err, domain.ErrStoreWrite), "got %v", err)

	_, err = s.PatchOutcome(ctx, rec.CaseID, outcomePatch(t, `{"resolved": true}`), "coordinator")
	require.Error(t, err)
	assert.True(t, domain.IsStorage(err), "got %v", err)

	got, err := s.Get(ctx, rec.CaseID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, got.Workflow.Status)
	assert.Nil(t, got.Outcome)
	assert.Equal(t, "system", got.LastUpdatedBy)
	assert.True(t, got.LastUpdatedAt.Equal(rec.LastUpdatedAt))
	assert.Equal(t, 0, changeCount(t, s, rec.CaseID))

	_, err = s.DB.Exec(`DROP TRIGGER fail_append`)
	require.NoError(t, err)
	res, err := s.PatchWorkflow(ctx, rec.CaseID, workflowPatch(t, `{"status": "CLOSED"}`), "coordinator")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, res.Before.Workflow.Status)
	assert.Equal(t, 1, changeCount(t, s, rec.CaseID))
}

func TestConcurrentPatchesSameCaseChain(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	rec := mustCreate(t, s)

	statuses := []string{"IN_PROGRESS", "WAITING", "IN_PROGRESS", "CLOSED", "IN_PROGRESS", "WAITING", "CLOSED", "NEW"}

	var g errgroup.Group
	for i, status := range statuses {
		editor := fmt.Sprintf("editor-%d", i)
		doc := fmt.Sprintf(`{"status": %q, "owner": %q}`, status, editor)
		p := workflowPatch(t, doc)
		g.Go(func() error {
			_, err := s.PatchWorkflow(ctx, rec.CaseID, p, editor)
			return err
		})
	}
	require.NoError(t, g.Wait())

	events, err := s.ChangesForCase(ctx, rec.CaseID)
	require.NoError(t, err)
	require.Len(t, events, len(statuses))

	assert.Equal(t, domain.StatusNew, events[0].Before.Workflow.Status)
	assert.Nil(t, events[0].Before.Workflow.Owner)
	for i := 1; i < len(events); i++ {
		if diff := cmp.Diff(events[i-1].After, events[i].Before); diff != "" {
			t.Fatalf("change %d does not chain from %d (-prev.after +next.before):\n%s", i, i-1, diff)
		}
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp), "ledger time went backwards at %d", i)
	}

	got, err := s.Get(ctx, rec.CaseID)
	require.NoError(t, err)
	if diff := cmp.Diff(events[len(events)-1].After.Workflow, got.Workflow); diff != "" {
		t.Errorf("case workflow diverges from last ledger entry:\n%s", diff)
	}

	_, err = s.VerifyLedger(ctx)
	require.NoError(t, err)
}

func TestConcurrentPatchesDifferentCases(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		ids = append(ids, mustCreate(t, s).CaseID)
	}

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if _, err := s.PatchOutcome(ctx, id, domain.OutcomePatch{Resolved: domain.Set(true)}, "n"); err != nil {
				return err
			}
			_, err := s.PatchWorkflow(ctx, id, domain.WorkflowPatch{Status: domain.Set(domain.StatusClosed)}, "n")
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, 2, changeCount(t, s, id))
	}
	recent, err := s.RecentChanges(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, recent, 12)
}

func TestVerifyLedger_Tampered(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	rec := mustCreate(t, s)

	for _, doc := range []string{`{"status":"IN_PROGRESS"}`, `{"status":"CLOSED"}`} {
		_, err := s.PatchWorkflow(ctx, rec.CaseID, workflowPatch(t, doc), "n")
		require.NoError(t, err)
	}

	_, err := s.DB.Exec(`UPDATE change_events SET after_json = '{}' WHERE id = (SELECT MIN(id) FROM change_events)`)
	require.NoError(t, err)

	_, err = s.VerifyLedger(ctx)
	assert.True(t, errors.Is(err, domain.ErrLedgerTampered), "got %v", err)
}

func TestIsConventionalTransition(t *testing.T) {
	assert.True(t, IsConventionalTransition(domain.StatusNew, domain.StatusInProgress))
	assert.True(t, IsConventionalTransition(domain.StatusClosed, domain.StatusClosed))
	assert.True(t, IsConventionalTransition(domain.StatusClosed, domain.StatusInProgress))
	assert.False(t, IsConventionalTransition(domain.StatusClosed, domain.StatusNew))
	assert.False(t, IsConventionalTransition(domain.StatusInProgress, domain.StatusNew))
}
