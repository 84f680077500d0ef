// Package workflow holds the routing rules for change-request reviews. It is
// the single place deciding which review stage a request must pass through;
// both the request service and any presentation code consult it.
package workflow

import "github.com/acadhub/projhub-api/internal/models"

// Step identifies the next expected action for a request.
type Step string

const (
	// StepSupervisor means a supervisor decision is expected next.
	StepSupervisor Step = "SUPERVISOR"
	// StepCommittee means a committee decision is expected next.
	StepCommittee Step = "COMMITTEE"
	// StepComplete means the workflow has ended, positively or negatively.
	StepComplete Step = "COMPLETE"
	// StepNone signals a type/status combination that should never arise.
	StepNone Step = "NONE"
)

// RequiresSupervisorApproval reports whether the given request type must pass
// a supervisor review before committee review. Supervisor and group changes
// are the only two supervisor-gated types; every other type goes straight to
// the committee.
func RequiresSupervisorApproval(t models.RequestType) bool {
	switch t {
	case models.RequestTypeChangeSupervisor, models.RequestTypeChangeGroup:
		return true
	default:
		return false
	}
}

// NextStep derives the next expected actor for a type/status pair. It never
// panics: an inconsistent combination yields StepNone so callers can treat
// "no further action defined" as an inspectable result.
func NextStep(t models.RequestType, status models.RequestStatus) Step {
	switch status {
	case models.RequestStatusPending:
		if RequiresSupervisorApproval(t) {
			return StepSupervisor
		}
		return StepCommittee
	case models.RequestStatusSupervisorApproved:
		if RequiresSupervisorApproval(t) {
			return StepCommittee
		}
		return StepNone
	case models.RequestStatusSupervisorRejected:
		if RequiresSupervisorApproval(t) {
			return StepComplete
		}
		return StepNone
	case models.RequestStatusCommitteeApproved,
		models.RequestStatusCommitteeRejected,
		models.RequestStatusCancelled:
		return StepComplete
	default:
		return StepNone
	}
}
