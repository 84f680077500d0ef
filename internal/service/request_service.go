package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acadhub/projhub-api/internal/dto"
	"github.com/acadhub/projhub-api/internal/models"
	"github.com/acadhub/projhub-api/internal/repository"
	"github.com/acadhub/projhub-api/internal/workflow"
	appErrors "github.com/acadhub/projhub-api/pkg/errors"
)

const committeeQueueCacheKey = "requests:queue:committee"

type requestStore interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error)
	ApplyDecision(ctx context.Context, params repository.ApplyDecisionParams) error
	Cancel(ctx context.Context, id string, updatedAt time.Time) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type queueCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type eventPublisher interface {
	PublishStatusChange(ctx context.Context, event models.RequestEvent) error
}

type workflowObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
	ObserveDecision(stage string, approved bool)
}

// RequestService enforces the change-request state machine. Every mutation
// validates the attempted transition against the workflow package before
// writing, and the write itself is conditional on the status it validated.
type RequestService struct {
	repo     requestStore
	audit    auditLogger
	cache    queueCache
	cacheTTL time.Duration
	events   eventPublisher
	metrics  workflowObserver
	logger   *zap.Logger
}

// RequestServiceOption configures the service.
type RequestServiceOption func(*RequestService)

// WithQueueCache enables committee-queue caching with the given TTL.
func WithQueueCache(cache queueCache, ttl time.Duration) RequestServiceOption {
	return func(s *RequestService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithEventPublisher sets the status-change event publisher.
func WithEventPublisher(events eventPublisher) RequestServiceOption {
	return func(s *RequestService) {
		if events != nil {
			s.events = events
		}
	}
}

// WithWorkflowObserver wires cache and decision instrumentation.
func WithWorkflowObserver(observer workflowObserver) RequestServiceOption {
	return func(s *RequestService) {
		if observer != nil {
			s.metrics = observer
		}
	}
}

// NewRequestService constructs the service with defaults.
func NewRequestService(repo requestStore, audit auditLogger, logger *zap.Logger, opts ...RequestServiceOption) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &RequestService{
		repo:     repo,
		audit:    audit,
		logger:   logger,
		cacheTTL: time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit stores a new change request in PENDING status.
func (s *RequestService) Submit(ctx context.Context, req dto.CreateRequestRequest, studentID string) (*models.Request, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}
	if studentID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	now := time.Now().UTC()
	request := &models.Request{
		Type:         models.RequestType(strings.ToUpper(strings.TrimSpace(string(req.Type)))),
		StudentID:    studentID,
		ProjectID:    optionalString(req.ProjectID),
		SupervisorID: optionalString(req.SupervisorID),
		Reason:       strings.TrimSpace(req.Reason),
		Status:       models.RequestStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &studentID,
		Action:     models.AuditActionRequestCreate,
		Resource:   "request",
		ResourceID: &request.ID,
		NewValues:  []byte(`{"status":"PENDING"}`),
	})
	s.afterStatusChange(ctx, request, studentID)
	return request, nil
}

// RecordSupervisorDecision applies a supervisor approve/reject decision.
func (s *RequestService) RecordSupervisorDecision(ctx context.Context, id, approverID string, req dto.DecisionRequest) (*models.Request, error) {
	if req.Approved == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approved is required")
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !workflow.RequiresSupervisorApproval(request.Type) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "this request type does not require supervisor approval")
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request already decided")
	}

	toStatus := models.RequestStatusSupervisorRejected
	if *req.Approved {
		toStatus = models.RequestStatusSupervisorApproved
	}
	return s.applyDecision(ctx, request, repository.ApplyDecisionParams{
		ID:         request.ID,
		FromStatus: models.RequestStatusPending,
		ToStatus:   toStatus,
		Stage:      models.StageSupervisor,
		Approval: models.Approval{
			Approved:  *req.Approved,
			Comments:  optionalString(req.Comments),
			DecidedBy: approverID,
			DecidedAt: time.Now().UTC(),
		},
	}, approverID)
}

// RecordCommitteeDecision applies a committee approve/reject decision.
func (s *RequestService) RecordCommitteeDecision(ctx context.Context, id, approverID string, req dto.DecisionRequest) (*models.Request, error) {
	if req.Approved == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approved is required")
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if workflow.NextStep(request.Type, request.Status) != workflow.StepCommittee {
		if request.Status == models.RequestStatusPending {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "supervisor approval is required before committee review")
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request already decided")
	}

	toStatus := models.RequestStatusCommitteeRejected
	if *req.Approved {
		toStatus = models.RequestStatusCommitteeApproved
	}
	return s.applyDecision(ctx, request, repository.ApplyDecisionParams{
		ID:         request.ID,
		FromStatus: request.Status,
		ToStatus:   toStatus,
		Stage:      models.StageCommittee,
		Approval: models.Approval{
			Approved:  *req.Approved,
			Comments:  optionalString(req.Comments),
			DecidedBy: approverID,
			DecidedAt: time.Now().UTC(),
		},
	}, approverID)
}

// Review is the legacy entry point that infers the review stage from the
// request's current status. It never carries its own guard logic; it only
// dispatches to the explicit stage operations.
func (s *RequestService) Review(ctx context.Context, id, reviewerID string, req dto.ReviewRequest) (*models.Request, error) {
	var approved bool
	switch strings.ToUpper(strings.TrimSpace(req.Decision)) {
	case dto.ReviewDecisionApprove:
		approved = true
	case dto.ReviewDecisionReject:
		approved = false
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be APPROVE or REJECT")
	}

	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	decision := dto.DecisionRequest{Approved: &approved, Comments: req.Comments}
	switch workflow.NextStep(request.Type, request.Status) {
	case workflow.StepSupervisor:
		return s.RecordSupervisorDecision(ctx, id, reviewerID, decision)
	case workflow.StepCommittee:
		return s.RecordCommitteeDecision(ctx, id, reviewerID, decision)
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "no review stage is open for this request")
	}
}

// Cancel withdraws a pending request. Only the owning student may cancel.
func (s *RequestService) Cancel(ctx context.Context, id, studentID string) error {
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return err
	}
	if request.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student")
	}
	if request.Status != models.RequestStatusPending {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "only pending requests can be cancelled")
	}
	now := time.Now().UTC()
	if err := s.repo.Cancel(ctx, id, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "request already decided")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel request")
	}
	request.Status = models.RequestStatusCancelled
	request.UpdatedAt = now
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &studentID,
		Action:     models.AuditActionRequestCancel,
		Resource:   "request",
		ResourceID: &request.ID,
		NewValues:  []byte(`{"status":"CANCELLED"}`),
	})
	s.afterStatusChange(ctx, request, studentID)
	return nil
}

// Get returns a request enforcing actor scope.
func (s *RequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleStudent:
		if request.StudentID != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
	case models.RoleSupervisor:
		if request.SupervisorID == nil || *request.SupervisorID != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
	}
	return request, nil
}

// List returns accessible requests respecting actor role.
func (s *RequestService) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.RequestFilter{
		Status: query.Status,
		Type:   query.Type,
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleCommitteeHead, models.RoleCommitteeMember:
		// full access, no extra filters
	case models.RoleSupervisor:
		filter.SupervisorID = actor.UserID
	case models.RoleStudent:
		filter.StudentID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// ListPendingForSupervisor returns requests awaiting the supervisor's review.
func (s *RequestService) ListPendingForSupervisor(ctx context.Context, supervisorID string) ([]models.Request, error) {
	requests, err := s.repo.List(ctx, models.RequestFilter{
		Status:       []models.RequestStatus{models.RequestStatusPending},
		SupervisorID: supervisorID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list supervisor queue")
	}
	queue := make([]models.Request, 0, len(requests))
	for _, request := range requests {
		if workflow.NextStep(request.Type, request.Status) == workflow.StepSupervisor {
			queue = append(queue, request)
		}
	}
	return queue, nil
}

// ListPendingForCommittee returns requests awaiting committee review.
func (s *RequestService) ListPendingForCommittee(ctx context.Context) ([]models.Request, error) {
	if s.cache != nil {
		start := time.Now()
		var cached []models.Request
		err := s.cache.Get(ctx, committeeQueueCacheKey, &cached)
		if err == nil {
			s.observeCache(true, time.Since(start))
			return cached, nil
		}
		s.observeCache(false, time.Since(start))
		if !appErrors.IsCode(err, appErrors.ErrCacheMiss.Code) {
			s.logger.Warn("committee queue cache read failed", zap.Error(err))
		}
	}

	requests, err := s.repo.List(ctx, models.RequestFilter{
		Status: []models.RequestStatus{
			models.RequestStatusPending,
			models.RequestStatusSupervisorApproved,
		},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list committee queue")
	}
	queue := make([]models.Request, 0, len(requests))
	for _, request := range requests {
		if workflow.NextStep(request.Type, request.Status) == workflow.StepCommittee {
			queue = append(queue, request)
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, committeeQueueCacheKey, queue, s.cacheTTL); err != nil {
			s.logger.Warn("committee queue cache write failed", zap.Error(err))
		}
	}
	return queue, nil
}

func (s *RequestService) loadRequest(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

// applyDecision performs the conditional write for a validated transition and
// stamps the in-memory record on success. A zero-row update means a
// concurrent decision won the race; the caller's guard fails after the fact.
func (s *RequestService) applyDecision(ctx context.Context, request *models.Request, params repository.ApplyDecisionParams, actorID string) (*models.Request, error) {
	params.UpdatedAt = time.Now().UTC()
	if err := s.repo.ApplyDecision(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request already decided by another reviewer")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	request.Status = params.ToStatus
	request.UpdatedAt = params.UpdatedAt
	approval := params.Approval
	if params.Stage == models.StageSupervisor {
		request.SupervisorApproval = &approval
	} else {
		request.CommitteeApproval = &approval
	}

	if s.metrics != nil {
		s.metrics.ObserveDecision(string(params.Stage), params.Approval.Approved)
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionRequestDecision,
		Resource:   "request",
		ResourceID: &request.ID,
		NewValues:  []byte(`{"status":"` + string(params.ToStatus) + `"}`),
	})
	s.afterStatusChange(ctx, request, actorID)
	return request, nil
}

// afterStatusChange handles best-effort side effects of a status mutation:
// cache invalidation and event publication. Failures are logged, never
// propagated; the transition itself has already been durably recorded.
func (s *RequestService) afterStatusChange(ctx context.Context, request *models.Request, actorID string) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, committeeQueueCacheKey); err != nil {
			s.logger.Warn("committee queue cache invalidation failed", zap.Error(err))
		}
	}
	if s.events != nil {
		event := models.RequestEvent{
			RequestID: request.ID,
			Type:      request.Type,
			Status:    request.Status,
			ActorID:   actorID,
			Occurred:  time.Now().UTC(),
		}
		if err := s.events.PublishStatusChange(ctx, event); err != nil {
			s.logger.Warn("failed to publish request event", zap.Error(err))
		}
	}
}

func (s *RequestService) observeCache(hit bool, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit, duration)
	}
}

func (s *RequestService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "request-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func validateCreateRequest(req dto.CreateRequestRequest) error {
	if strings.TrimSpace(req.Reason) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "reason is required")
	}
	switch models.RequestType(strings.ToUpper(strings.TrimSpace(string(req.Type)))) {
	case models.RequestTypeChangeSupervisor,
		models.RequestTypeChangeGroup,
		models.RequestTypeChangeProject,
		models.RequestTypeOther:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported request type")
	}
	return nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
