package cases

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

const (
	maxEditorLen = 200
	maxOwnerLen  = 200
	maxNotesLen  = 4000
)

// outcomeChange is a validated, normalized OutcomePatch.
type outcomeChange struct {
	CareSought    domain.Field[bool]
	CareTimeHours domain.Field[float64]
	CareType      domain.Field[domain.CareType]
	Resolved      domain.Field[bool]
	Notes         domain.Field[string]
}

// workflowChange is a validated, normalized WorkflowPatch with parsed
// timestamps.
type workflowChange struct {
	Status        domain.Field[domain.WorkflowStatus]
	Owner         domain.Field[string]
	FollowUpDueAt domain.Field[time.Time]
	LastContactAt domain.Field[time.Time]
}

// patchValidator checks patch values before any transaction opens. It
// collects every violation and reports the most specific sentinel.
type patchValidator struct {
	v *validator.Validate
}

func newPatchValidator() *patchValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("care_type", func(fl validator.FieldLevel) bool {
		return slices.Contains(domain.CareTypes, domain.CareType(fl.Field().String()))
	})
	_ = v.RegisterValidation("workflow_status", func(fl validator.FieldLevel) bool {
		return slices.Contains(domain.WorkflowStatuses, domain.WorkflowStatus(fl.Field().String()))
	})
	return &patchValidator{v: v}
}

type violations struct {
	base     *domain.Error
	problems []string
}

func (vs *violations) add(base *domain.Error, field, msg string) {
	if vs.base == nil || vs.base == domain.ErrValidation {
		vs.base = base
	}
	vs.problems = append(vs.problems, field+": "+msg)
}

func (vs *violations) err(what string) error {
	if len(vs.problems) == 0 {
		return nil
	}
	return domain.NewError(vs.base, fmt.Sprintf("invalid %s: %s", what, strings.Join(vs.problems, "; ")))
}

// check runs tag against v and records a violation for field on failure.
func (p *patchValidator) check(vs *violations, field string, v any, tag string) bool {
	err := p.v.Var(v, tag)
	if err == nil {
		return true
	}
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) || len(fes) == 0 {
		vs.add(domain.ErrValidation, field, err.Error())
		return false
	}
	fe := fes[0]
	switch fe.Tag() {
	case "gte":
		vs.add(domain.ErrNegativeDuration, field, "must not be negative")
	case "care_type", "workflow_status":
		vs.add(domain.ErrInvalidEnum, field, fmt.Sprintf("unrecognized value %q", fe.Value()))
	case "datetime":
		vs.add(domain.ErrInvalidTimestamp, field, fmt.Sprintf("%q is not an RFC 3339 timestamp", fe.Value()))
	case "max":
		vs.add(domain.ErrValidation, field, fmt.Sprintf("longer than %s characters", fe.Param()))
	case "required":
		vs.add(domain.ErrValidation, field, "is required")
	default:
		vs.add(domain.ErrValidation, field, fmt.Sprintf("failed %q check", fe.Tag()))
	}
	return false
}

// editor trims and checks the actor identity.
func (p *patchValidator) editor(editor string) (string, error) {
	editor = strings.TrimSpace(editor)
	if editor == "" {
		return "", domain.ErrMissingEditor
	}
	if len(editor) > maxEditorLen {
		return "", domain.NewError(domain.ErrMissingEditor,
			fmt.Sprintf("editor identity longer than %d characters", maxEditorLen))
	}
	return editor, nil
}

// outcome validates and normalizes an outcome patch. Text that is empty
// after trimming is treated as a clear.
func (p *patchValidator) outcome(patch domain.OutcomePatch) (outcomeChange, error) {
	var vs violations
	c := outcomeChange{
		CareSought: patch.CareSought,
		Resolved:   patch.Resolved,
	}

	if patch.CareTimeHours.IsSet() {
		h := patch.CareTimeHours.Value()
		if math.IsInf(h, 0) || math.IsNaN(h) {
			vs.add(domain.ErrValidation, "care_time_hours", "must be a finite number")
		} else if p.check(&vs, "care_time_hours", h, "gte=0") {
			c.CareTimeHours = patch.CareTimeHours
		}
	} else {
		c.CareTimeHours = patch.CareTimeHours
	}

	if patch.CareType.IsSet() {
		if p.check(&vs, "care_type", string(patch.CareType.Value()), "care_type") {
			c.CareType = patch.CareType
		}
	} else {
		c.CareType = patch.CareType
	}

	c.Notes = p.text(&vs, "notes", patch.Notes, maxNotesLen)

	if err := vs.err("outcome patch"); err != nil {
		return outcomeChange{}, err
	}
	if !c.CareSought.Present() && !c.CareTimeHours.Present() && !c.CareType.Present() &&
		!c.Resolved.Present() && !c.Notes.Present() {
		return outcomeChange{}, domain.ErrEmptyPatch
	}
	return c, nil
}

// workflow validates and normalizes a workflow patch. Status may be
// changed but never cleared.
func (p *patchValidator) workflow(patch domain.WorkflowPatch) (workflowChange, error) {
	var vs violations
	var c workflowChange

	switch {
	case patch.Status.IsClear():
		vs.add(domain.ErrValidation, "status", "cannot be cleared")
	case patch.Status.IsSet():
		if p.check(&vs, "status", string(patch.Status.Value()), "workflow_status") {
			c.Status = patch.Status
		}
	}

	c.Owner = p.text(&vs, "owner", patch.Owner, maxOwnerLen)
	c.FollowUpDueAt = p.timestamp(&vs, "follow_up_due_at", patch.FollowUpDueAt)
	c.LastContactAt = p.timestamp(&vs, "last_contact_at", patch.LastContactAt)

	if err := vs.err("workflow patch"); err != nil {
		return workflowChange{}, err
	}
	if !c.Status.Present() && !c.Owner.Present() && !c.FollowUpDueAt.Present() && !c.LastContactAt.Present() {
		return workflowChange{}, domain.ErrEmptyPatch
	}
	return c, nil
}

func (p *patchValidator) text(vs *violations, field string, f domain.Field[string], limit int) domain.Field[string] {
	if !f.IsSet() {
		return f
	}
	s := strings.TrimSpace(f.Value())
	if s == "" {
		return domain.Clear[string]()
	}
	if !p.check(vs, field, s, fmt.Sprintf("max=%d", limit)) {
		return domain.Field[string]{}
	}
	return domain.Set(s)
}

func (p *patchValidator) timestamp(vs *violations, field string, f domain.Field[string]) domain.Field[time.Time] {
	switch {
	case f.IsClear():
		return domain.Clear[time.Time]()
	case !f.IsSet():
		return domain.Field[time.Time]{}
	}
	s := strings.TrimSpace(f.Value())
	if !p.check(vs, field, s, "required,datetime="+time.RFC3339) {
		return domain.Field[time.Time]{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		vs.add(domain.ErrInvalidTimestamp, field, err.Error())
		return domain.Field[time.Time]{}
	}
	return domain.Set(t.UTC())
}

// patchJSON renders the requested patch with only the keys that were
// sent; cleared keys are null.
func patchJSON(fields map[string]rawer) (json.RawMessage, error) {
	m := make(map[string]any, len(fields))
	for k, f := range fields {
		if v, ok := f.Raw(); ok {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

type rawer interface {
	Raw() (any, bool)
}

// outcomeRequest lists the outcome fields as the caller sent them, before
// trimming.
func outcomeRequest(p domain.OutcomePatch) map[string]rawer {
	return map[string]rawer{
		"care_sought":     p.CareSought,
		"care_time_hours": p.CareTimeHours,
		"care_type":       p.CareType,
		"resolved":        p.Resolved,
		"notes":           p.Notes,
	}
}

// workflowRequest lists the workflow fields as the caller sent them.
// Timestamps keep their original offset.
func workflowRequest(p domain.WorkflowPatch) map[string]rawer {
	return map[string]rawer{
		"status":           p.Status,
		"owner":            p.Owner,
		"follow_up_due_at": p.FollowUpDueAt,
		"last_contact_at":  p.LastContactAt,
	}
}
