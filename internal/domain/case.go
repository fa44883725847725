package domain

import (
	"encoding/json"
	"time"
)

// CareType is where care was actually sought.
type CareType string

const (
	CareEmergencyDepartment  CareType = "EMERGENCY_DEPARTMENT"
	CareMaternityTriage      CareType = "MATERNITY_TRIAGE"
	CareGP                   CareType = "GP"
	CareMidwifeHealthVisitor CareType = "MIDWIFE_HEALTH_VISITOR"
	CareMentalHealthService  CareType = "MENTAL_HEALTH_SERVICE"
	CarePelvicHealthPhysio   CareType = "PELVIC_HEALTH_PHYSIO"
	CareOther                CareType = "OTHER"
	CareNone                 CareType = "NONE"
)

// CareTypes lists every recognized CareType.
var CareTypes = []CareType{
	CareEmergencyDepartment, CareMaternityTriage, CareGP, CareMidwifeHealthVisitor,
	CareMentalHealthService, CarePelvicHealthPhysio, CareOther, CareNone,
}

// WorkflowStatus is the operational state of a case. Any status may follow
// any other.
type WorkflowStatus string

const (
	StatusNew        WorkflowStatus = "NEW"
	StatusInProgress WorkflowStatus = "IN_PROGRESS"
	StatusWaiting    WorkflowStatus = "WAITING"
	StatusClosed     WorkflowStatus = "CLOSED"
)

// WorkflowStatuses lists every recognized WorkflowStatus.
var WorkflowStatuses = []WorkflowStatus{StatusNew, StatusInProgress, StatusWaiting, StatusClosed}

// ChangeType distinguishes ledger entries.
type ChangeType string

const (
	ChangeOutcomeUpdate  ChangeType = "OUTCOME_UPDATE"
	ChangeWorkflowUpdate ChangeType = "WORKFLOW_UPDATE"
)

// Outcome records what care was sought after triage.
type Outcome struct {
	CareSought    *bool     `json:"care_sought,omitempty"`
	CareTimeHours *float64  `json:"care_time_hours,omitempty"`
	CareType      *CareType `json:"care_type,omitempty"`
	Resolved      *bool     `json:"resolved,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
	UpdatedBy     string    `json:"updated_by"`
}

// Workflow is the team's working state for a case.
type Workflow struct {
	Status        WorkflowStatus `json:"status"`
	Owner         *string        `json:"owner,omitempty"`
	FollowUpDueAt *time.Time     `json:"follow_up_due_at,omitempty"`
	LastContactAt *time.Time     `json:"last_contact_at,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
	UpdatedBy     string         `json:"updated_by"`
}

// CaseMeta is supplied by the caller when a case is created.
type CaseMeta struct {
	Source         string `json:"source,omitempty"`
	RuleSetVersion string `json:"rule_set_version,omitempty"`
	Locale         string `json:"locale,omitempty"`
	CreatedBy      string `json:"created_by,omitempty"`
}

// CaseRecord is the aggregate root persisted by the case store. Decision is
// never modified after creation; Workflow is always present.
type CaseRecord struct {
	CaseID        string         `json:"case_id"`
	CreatedAt     time.Time      `json:"created_at"`
	Meta          CaseMeta       `json:"meta"`
	Decision      DecisionResult `json:"decision"`
	Outcome       *Outcome       `json:"outcome,omitempty"`
	Workflow      Workflow       `json:"workflow"`
	LastUpdatedBy string         `json:"last_updated_by"`
	LastUpdatedAt time.Time      `json:"last_updated_at"`
}

// Snapshot captures the mutable parts of a record.
func (c CaseRecord) Snapshot() CaseSnapshot {
	snap := CaseSnapshot{Workflow: c.Workflow}
	if c.Outcome != nil {
		o := *c.Outcome
		snap.Outcome = &o
	}
	return snap
}

// CaseSnapshot is the before/after image stored in a ChangeEvent.
type CaseSnapshot struct {
	Outcome  *Outcome `json:"outcome,omitempty"`
	Workflow Workflow `json:"workflow"`
}

// ChangeEvent is one entry of the append-only change ledger.
type ChangeEvent struct {
	ChangeID   string          `json:"change_id"`
	CaseID     string          `json:"case_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Editor     string          `json:"editor"`
	ChangeType ChangeType      `json:"change_type"`
	Patch      json.RawMessage `json:"patch"`
	Before     CaseSnapshot    `json:"before"`
	After      CaseSnapshot    `json:"after"`
	PrevHash   string          `json:"prev_hash"`
	Hash       string          `json:"hash"`
}

// OutcomePatch is a partial Outcome update.
type OutcomePatch struct {
	CareSought    Field[bool]     `json:"care_sought"`
	CareTimeHours Field[float64]  `json:"care_time_hours"`
	CareType      Field[CareType] `json:"care_type"`
	Resolved      Field[bool]     `json:"resolved"`
	Notes         Field[string]   `json:"notes"`
}

// WorkflowPatch is a partial Workflow update. Timestamps travel as RFC 3339
// strings and are parsed during validation.
type WorkflowPatch struct {
	Status        Field[WorkflowStatus] `json:"status"`
	Owner         Field[string]         `json:"owner"`
	FollowUpDueAt Field[string]         `json:"follow_up_due_at"`
	LastContactAt Field[string]         `json:"last_contact_at"`
}

// PatchResult is returned by a successful patch.
type PatchResult struct {
	Before CaseSnapshot `json:"before"`
	After  CaseSnapshot `json:"after"`
	Change ChangeEvent  `json:"change"`
}
