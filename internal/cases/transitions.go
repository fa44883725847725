package cases

import "github.com/muzzaleeni/qwazi/internal/domain"

// conventionalTransitions is the usual forward flow of a case. It is
// advisory: PatchWorkflow applies any transition, and only logs the ones
// missing here as coordinator overrides.
var conventionalTransitions = map[domain.WorkflowStatus]map[domain.WorkflowStatus]bool{
	domain.StatusNew:        {domain.StatusInProgress: true, domain.StatusWaiting: true, domain.StatusClosed: true},
	domain.StatusInProgress: {domain.StatusWaiting: true, domain.StatusClosed: true},
	domain.StatusWaiting:    {domain.StatusInProgress: true, domain.StatusClosed: true},
	domain.StatusClosed:     {domain.StatusInProgress: true}, // reopen
}

// IsConventionalTransition reports whether from -> to follows the usual
// case flow. Staying in the same status is always conventional.
func IsConventionalTransition(from, to domain.WorkflowStatus) bool {
	if from == to {
		return true
	}
	return conventionalTransitions[from][to]
}
