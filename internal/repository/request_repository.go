package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadhub/projhub-api/internal/models"
)

// RequestRepository persists change-request workflow data.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request row.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	if request.UpdatedAt.IsZero() {
		request.UpdatedAt = request.CreatedAt
	}
	const query = `INSERT INTO requests
	(id, type, student_id, project_id, supervisor_id, reason, status, supervisor_approval, committee_approval, created_at, updated_at)
	VALUES (:id, :type, :student_id, :project_id, :supervisor_id, :reason, :status, :supervisor_approval, :committee_approval, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	const query = `SELECT id, type, student_id, project_id, supervisor_id, reason, status,
       supervisor_approval, committee_approval, created_at, updated_at
	FROM requests WHERE id = $1`
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter (newest first).
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT id, type, student_id, project_id, supervisor_id, reason, status,
       supervisor_approval, committee_approval, created_at, updated_at FROM requests`)

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.SupervisorID != "" {
		args = append(args, filter.SupervisorID)
		conditions = append(conditions, fmt.Sprintf("supervisor_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// ApplyDecisionParams groups the columns written by a review decision.
type ApplyDecisionParams struct {
	ID         string
	FromStatus models.RequestStatus
	ToStatus   models.RequestStatus
	Stage      models.ApprovalStage
	Approval   models.Approval
	UpdatedAt  time.Time
}

// ApplyDecision persists a review outcome. The status predicate makes the
// read-compare-write a single atomic unit: a concurrent decision that already
// moved the row off FromStatus leaves zero rows affected, reported as
// sql.ErrNoRows so the caller can fail its guard.
func (r *RequestRepository) ApplyDecision(ctx context.Context, params ApplyDecisionParams) error {
	column := "committee_approval"
	if params.Stage == models.StageSupervisor {
		column = "supervisor_approval"
	}
	query := fmt.Sprintf(`UPDATE requests
	SET status = :to_status, %s = :approval, updated_at = :updated_at
	WHERE id = :id AND status = :from_status AND %s IS NULL`, column, column)

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          params.ID,
		"from_status": params.FromStatus,
		"to_status":   params.ToStatus,
		"approval":    params.Approval,
		"updated_at":  params.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("apply decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Cancel marks a pending request cancelled. Same atomic predicate as
// ApplyDecision: zero rows means the request already left PENDING.
func (r *RequestRepository) Cancel(ctx context.Context, id string, updatedAt time.Time) error {
	const query = `UPDATE requests SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query,
		models.RequestStatusCancelled, updatedAt, id, models.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("cancel request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check cancel rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
