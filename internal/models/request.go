package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RequestType enumerates supported change-request categories.
type RequestType string

const (
	RequestTypeChangeSupervisor RequestType = "CHANGE_SUPERVISOR"
	RequestTypeChangeGroup      RequestType = "CHANGE_GROUP"
	RequestTypeChangeProject    RequestType = "CHANGE_PROJECT"
	RequestTypeOther            RequestType = "OTHER"
)

// RequestStatus captures workflow states for change requests.
type RequestStatus string

const (
	RequestStatusPending            RequestStatus = "PENDING"
	RequestStatusSupervisorApproved RequestStatus = "SUPERVISOR_APPROVED"
	RequestStatusSupervisorRejected RequestStatus = "SUPERVISOR_REJECTED"
	RequestStatusCommitteeApproved  RequestStatus = "COMMITTEE_APPROVED"
	RequestStatusCommitteeRejected  RequestStatus = "COMMITTEE_REJECTED"
	RequestStatusCancelled          RequestStatus = "CANCELLED"
)

// ApprovalStage identifies which review stage produced a decision.
type ApprovalStage string

const (
	StageSupervisor ApprovalStage = "SUPERVISOR"
	StageCommittee  ApprovalStage = "COMMITTEE"
)

// Approval records a single review decision. Stored as a JSONB column and
// written at most once per stage.
type Approval struct {
	Approved  bool      `json:"approved"`
	Comments  *string   `json:"comments,omitempty"`
	DecidedBy string    `json:"decidedBy"`
	DecidedAt time.Time `json:"decidedAt"`
}

// Value implements driver.Valuer for JSONB storage.
func (a Approval) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner for JSONB storage.
func (a *Approval) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported approval column type %T", src)
	}
}

// Request stores a student change petition tracked through approval.
type Request struct {
	ID                 string        `db:"id" json:"id"`
	Type               RequestType   `db:"type" json:"type"`
	StudentID          string        `db:"student_id" json:"studentId"`
	ProjectID          *string       `db:"project_id" json:"projectId,omitempty"`
	SupervisorID       *string       `db:"supervisor_id" json:"supervisorId,omitempty"`
	Reason             string        `db:"reason" json:"reason"`
	Status             RequestStatus `db:"status" json:"status"`
	SupervisorApproval *Approval     `db:"supervisor_approval" json:"supervisorApproval,omitempty"`
	CommitteeApproval  *Approval     `db:"committee_approval" json:"committeeApproval,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updatedAt"`
}

// RequestFilter constrains listing queries.
type RequestFilter struct {
	Status       []RequestStatus
	Type         RequestType
	StudentID    string
	SupervisorID string
	Limit        int
	Offset       int
}

// RequestEvent is the payload published on status changes.
type RequestEvent struct {
	RequestID string        `json:"requestId"`
	Type      RequestType   `json:"type"`
	Status    RequestStatus `json:"status"`
	ActorID   string        `json:"actorId"`
	Occurred  time.Time     `json:"occurred"`
}
