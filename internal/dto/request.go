package dto

import "github.com/acadhub/projhub-api/internal/models"

// CreateRequestRequest payload for submitting a change request.
type CreateRequestRequest struct {
	Type         models.RequestType `json:"type"`
	ProjectID    string             `json:"projectId"`
	SupervisorID string             `json:"supervisorId"`
	Reason       string             `json:"reason"`
}

// DecisionRequest captures a stage-specific approve/reject decision.
// Approved is a pointer so a missing field is distinguishable from false.
type DecisionRequest struct {
	Approved *bool  `json:"approved"`
	Comments string `json:"comments"`
}

// ReviewRequest is the legacy decision payload that does not name a stage;
// the service infers the stage from the request's current status.
type ReviewRequest struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

// Legacy review decision verbs.
const (
	ReviewDecisionApprove = "APPROVE"
	ReviewDecisionReject  = "REJECT"
)

// RequestQuery mirrors supported listing filters.
type RequestQuery struct {
	Status []models.RequestStatus
	Type   models.RequestType
}
