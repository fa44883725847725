package domain

import "time"

// AccessOutcome is the result of an access decision.
type AccessOutcome string

const (
	AccessAllowed     AccessOutcome = "allowed"
	AccessDenied      AccessOutcome = "denied"
	AccessRateLimited AccessOutcome = "rate_limited"
)

// AccessRecord is one entry of the access audit log: who attempted which
// mutation and whether it was let through.
type AccessRecord struct {
	ID        string        `json:"id"`
	Actor     string        `json:"actor"`
	Action    string        `json:"action"`
	CaseID    string        `json:"case_id,omitempty"`
	Outcome   AccessOutcome `json:"outcome"`
	Detail    string        `json:"detail,omitempty"`
	Severity  string        `json:"severity"`
	CreatedAt time.Time     `json:"created_at"`
}
