package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acadhub/projhub-api/internal/dto"
	"github.com/acadhub/projhub-api/internal/models"
	"github.com/acadhub/projhub-api/internal/repository"
	appErrors "github.com/acadhub/projhub-api/pkg/errors"
)

// requestRepoStub mirrors the conditional-write semantics of the real
// repository: a decision only lands when the row still carries the expected
// status and the stage column is unset.
type requestRepoStub struct {
	mu       sync.Mutex
	requests map[string]*models.Request
	filters  []models.RequestFilter
}

func newRequestRepoStub() *requestRepoStub {
	return &requestRepoStub{requests: make(map[string]*models.Request)}
}

func (m *requestRepoStub) Create(ctx context.Context, request *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	copied := *request
	m.requests[request.ID] = &copied
	return nil
}

func (m *requestRepoStub) GetByID(ctx context.Context, id string) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if request, ok := m.requests[id]; ok {
		copied := *request
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *requestRepoStub) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	statuses := make(map[models.RequestStatus]struct{}, len(filter.Status))
	for _, status := range filter.Status {
		statuses[status] = struct{}{}
	}
	result := make([]models.Request, 0, len(m.requests))
	for _, request := range m.requests {
		if len(statuses) > 0 {
			if _, ok := statuses[request.Status]; !ok {
				continue
			}
		}
		if filter.StudentID != "" && request.StudentID != filter.StudentID {
			continue
		}
		if filter.SupervisorID != "" && (request.SupervisorID == nil || *request.SupervisorID != filter.SupervisorID) {
			continue
		}
		result = append(result, *request)
	}
	return result, nil
}

func (m *requestRepoStub) ApplyDecision(ctx context.Context, params repository.ApplyDecisionParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[params.ID]
	if !ok || request.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	if params.Stage == models.StageSupervisor && request.SupervisorApproval != nil {
		return sql.ErrNoRows
	}
	if params.Stage == models.StageCommittee && request.CommitteeApproval != nil {
		return sql.ErrNoRows
	}
	approval := params.Approval
	if params.Stage == models.StageSupervisor {
		request.SupervisorApproval = &approval
	} else {
		request.CommitteeApproval = &approval
	}
	request.Status = params.ToStatus
	request.UpdatedAt = params.UpdatedAt
	return nil
}

func (m *requestRepoStub) Cancel(ctx context.Context, id string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[id]
	if !ok || request.Status != models.RequestStatusPending {
		return sql.ErrNoRows
	}
	request.Status = models.RequestStatusCancelled
	request.UpdatedAt = updatedAt
	return nil
}

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditStub) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.logs)
}

type eventStub struct {
	mu     sync.Mutex
	events []models.RequestEvent
}

func (e *eventStub) PublishStatusChange(ctx context.Context, event models.RequestEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

type cacheStub struct {
	mu      sync.Mutex
	store   map[string][]byte
	sets    int
	deletes int
}

func newCacheStub() *cacheStub {
	return &cacheStub{store: make(map[string][]byte)}
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store[key] = raw
	c.sets++
	return nil
}

func (c *cacheStub) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.deletes++
	return nil
}

func boolPtr(v bool) *bool { return &v }

func submitRequest(t *testing.T, svc *RequestService, requestType models.RequestType, studentID, supervisorID string) *models.Request {
	t.Helper()
	request, err := svc.Submit(context.Background(), dto.CreateRequestRequest{
		Type:         requestType,
		SupervisorID: supervisorID,
		Reason:       "research direction no longer matches",
	}, studentID)
	require.NoError(t, err)
	return request
}

func TestRequestServiceSubmit(t *testing.T) {
	repo := newRequestRepoStub()
	audit := &auditStub{}
	events := &eventStub{}
	svc := NewRequestService(repo, audit, nil, WithEventPublisher(events))

	request := submitRequest(t, svc, models.RequestTypeChangeGroup, "student-1", "sup-1")
	require.Equal(t, models.RequestStatusPending, request.Status)
	require.NotEmpty(t, request.ID)
	require.Nil(t, request.SupervisorApproval)
	require.Nil(t, request.CommitteeApproval)
	require.Equal(t, 1, audit.count())
	require.Len(t, events.events, 1)
	assert.Equal(t, models.RequestStatusPending, events.events[0].Status)
}

func TestRequestServiceSubmitValidation(t *testing.T) {
	svc := NewRequestService(newRequestRepoStub(), &auditStub{}, nil)

	_, err := svc.Submit(context.Background(), dto.CreateRequestRequest{
		Type: models.RequestTypeOther,
	}, "student-1")
	require.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Submit(context.Background(), dto.CreateRequestRequest{
		Type:   "SWAP_EVERYTHING",
		Reason: "because",
	}, "student-1")
	require.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

// Group change: supervisor stage first, then committee.
func TestRequestServiceGroupChangeFullFlow(t *testing.T) {
	repo := newRequestRepoStub()
	svc := NewRequestService(repo, &auditStub{}, nil)
	request := submitRequest(t, svc, models.RequestTypeChangeGroup, "student-1", "sup-1")

	queue, err := svc.ListPendingForSupervisor(context.Background(), "sup-1")
	require.NoError(t, err)
	require.Len(t, queue, 1)

	approved, err := svc.RecordSupervisorDecision(context.Background(), request.ID, "sup-1", dto.DecisionRequest{
		Approved: boolPtr(true),
		Comments: "ok",
	})
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusSupervisorApproved, approved.Status)
	require.NotNil(t, approved.SupervisorApproval)
	require.True(t, approved.SupervisorApproval.Approved)
	require.Equal(t, "ok", *approved.SupervisorApproval.Comments)
	require.Equal(t, "sup-1", approved.SupervisorApproval.DecidedBy)

	committee, err := svc.ListPendingForCommittee(context.Background())
	require.NoError(t, err)
	require.Len(t, committee, 1)

	rejected, err := svc.RecordCommitteeDecision(context.Background(), request.ID, "com-1", dto.DecisionRequest{
		Approved: boolPtr(false),
		Comments: "insufficient justification",
	})
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusCommitteeRejected, rejected.Status)
	require.NotNil(t, rejected.CommitteeApproval)
	require.False(t, rejected.CommitteeApproval.Approved)
	require.NotNil(t, rejected.SupervisorApproval)
}

// Requests that bypass the supervisor stage go straight to the committee and
// never acquire a supervisor approval.
func TestRequestServiceCommitteeActsDirectly(t *testing.T) {
	repo := newRequestRepoStub()
	svc := NewRequestService(repo, &auditStub{}, nil)
	request := submitRequest(t, svc, models.RequestTypeOther, "student-1", "")

	approved, err := svc.RecordCommitteeDecision(context.Background(), request.ID, "com-1", dto.DecisionRequest{
		Approved: boolPtr(true),
	})
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusCommitteeApproved, approved.Status)
	require.Nil(t, approved.SupervisorApproval)

	_, err = svc.RecordSupervisorDecision(context.Background(), request.ID, "sup-1", dto.DecisionRequest{
		Approved: boolPtr(true),
	})
	require.True(t, appErrors.IsCode(err, appErrors.ErrInvalidTransition.Code))
}

func TestRequestServiceCommitteeBlockedBeforeSupervisor(t *testing.T) {
	repo := newRequestRepoStub()
	svc := NewRequestService(repo, &auditStub{}, nil)
	request := submitRequest(t, svc, models.RequestTypeChangeSupervisor, "student-1", "sup-1")

	_, err := svc.RecordCommitteeDecision(context.Background(), request.ID, "com-1", dto.DecisionRequest{
		Approved: boolPtr(true),
	})
	require.True(t, appErrors.IsCode(err, appErrors.ErrInvalidTransition.Code))

	stored, getErr := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, getErr)
	require.Equal(t, models.RequestStatusPending, stored.Status)
	require.Nil(t, stored.CommitteeApproval)
}

func TestRequestServiceSupervisorNotRequired(t *testing.T) {
	repo := newRequestRepoStub()
	svc := NewRequestService(repo, &auditStub{}, nil)
	request := submitRequest(t, svc, models.RequestTypeChangeProject, "student-1", "sup-1")

	_, err := svc.RecordSupervisorDecision(context.Background(), request.ID, "sup-1", dto.DecisionRequest{
		Approved: boolPtr(true),
	})
	require.True(t, appErrors.IsCode(err, appErrors.ErrInvalidTransition.Code))
}

func TestRequestServiceCommitteeNeverReviewsAfterSupervisorRejection(t *testing.T) {
	repo := newRequestRepoStub()
	svc := NewRequestService(repo, &auditStub{}, nil)
	request := submitRequest(t, svc, models.RequestTypeChangeGroup, "student-1", "sup-1")

	_, err := svc.RecordSupervisorDecision(context.Background(), request.ID, "sup-1", dto.DecisionRequest{
		Approved: boolPtr(false),
	})
	require.NoError(t, err)

	_, err = svc.RecordCommitteeDecision(context.Background(), request.ID, "com-1", dto.DecisionRequest{
		Approved: boolPtr(true),
	})
	require.True(t, appErrors.IsCode(err, appErrors.ErrInvalidTransition.Code))
}

func TestRequestServiceCancel(t *testing.T) {
	repo := newRequestRepoStub()
	svc := NewRequestService(repo, &auditStub{}, nil)
	request := submitRequest(t, svc, models.RequestTypeChangeSupervisor, "student-1", "sup-1")

	err := svc.Cancel(context.Background(), request.ID, "student-2")
	require.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	require.NoError(t, svc.Cancel(context.Background(), request.ID, "student-1"))

	stored, getErr := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, getErr)
	require.Equal(t, models.RequestStatusCancelled, stored.Status)

	_, err = svc.RecordSupervisorDecision(context.Background(), request.ID, "sup-1", dto.DecisionRequest{
		Approved: boolPtr(true),
	})
	require.True(t, appErrors.IsCode(err, appErrors.ErrInvalidTransition.Code))
}

func TestRequestServiceCancelAfterDecision(t *testing.T) {
	repo := newRequestRepoStub()
	svc := NewRequestService(repo, &auditStub{}, nil)
	request := submitRequest(t, svc, models.RequestTypeChangeGroup, "student-1", "sup-1")

	_, err := svc.RecordSupervisorDecision(context.Background(), request.ID, "sup-1", dto.DecisionRequest{
		Approved: boolPtr(true),
	})
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), request.ID, "student-1")
	require.True(t, appErrors.IsCode(err, appErrors.ErrInvalidTransition.Code))
}

func TestRequestServiceLegacyReviewDispatch(t *testing.T) {
	repo := newRequestRepoStub()
	svc := NewRequestService(repo, &auditStub{}, nil)
	request := submitRequest(t, svc, models.RequestTypeChangeGroup, "student-1", "sup-1")

	_, err := svc.Review(context.Background(), request.ID, "sup-1", dto.ReviewRequest{Decision: "approve"})
	require.NoError(t, err)

	reviewed, err := svc.Review(context.Background(), request.ID, "com-1", dto.ReviewRequest{Decision: "REJECT"})
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusCommitteeRejected, reviewed.Status)

	_, err = svc.Review(context.Background(), request.ID, "com-1", dto.ReviewRequest{Decision: "APPROVE"})
	require.True(t, appErrors.IsCode(err, appErrors.ErrInvalidTransition.Code))

	_, err = svc.Review(context.Background(), request.ID, "com-1", dto.ReviewRequest{Decision: "MAYBE"})
	require.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestRequestServiceNotFound(t *testing.T) {
	svc := NewRequestService(newRequestRepoStub(), &auditStub{}, nil)
	_, err := svc.RecordCommitteeDecision(context.Background(), "missing", "com-1", dto.DecisionRequest{
		Approved: boolPtr(true),
	})
	require.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

// Two concurrent decisions on the same request: exactly one lands, the loser
// observes the post-transition status and fails its guard.
func TestRequestServiceConcurrentDecisionsExclusive(t *testing.T) {
	repo := newRequestRepoStub()
	svc := NewRequestService(repo, &auditStub{}, nil)
	request := submitRequest(t, svc, models.RequestTypeOther, "student-1", "")

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, approve := range []bool{true, false} {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			_, err := svc.RecordCommitteeDecision(context.Background(), request.ID, "com-1", dto.DecisionRequest{
				Approved: boolPtr(approve),
			})
			results <- err
		}(approve)
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		require.True(t, appErrors.IsCode(err, appErrors.ErrInvalidTransition.Code))
		conflicts++
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, conflicts)

	stored, err := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CommitteeApproval)
	if stored.CommitteeApproval.Approved {
		require.Equal(t, models.RequestStatusCommitteeApproved, stored.Status)
	} else {
		require.Equal(t, models.RequestStatusCommitteeRejected, stored.Status)
	}
}

func TestRequestServiceListScopesByRole(t *testing.T) {
	repo := newRequestRepoStub()
	svc := NewRequestService(repo, &auditStub{}, nil)
	submitRequest(t, svc, models.RequestTypeOther, "student-1", "")

	_, err := svc.List(context.Background(), dto.RequestQuery{}, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	require.NoError(t, err)
	require.Equal(t, "student-1", repo.filters[len(repo.filters)-1].StudentID)

	_, err = svc.List(context.Background(), dto.RequestQuery{}, &models.JWTClaims{UserID: "sup-9", Role: models.RoleSupervisor})
	require.NoError(t, err)
	require.Equal(t, "sup-9", repo.filters[len(repo.filters)-1].SupervisorID)

	_, err = svc.List(context.Background(), dto.RequestQuery{}, &models.JWTClaims{UserID: "x", Role: models.UserRole("VISITOR")})
	require.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
}

func TestRequestServiceCommitteeQueueCaching(t *testing.T) {
	repo := newRequestRepoStub()
	cache := newCacheStub()
	svc := NewRequestService(repo, &auditStub{}, nil, WithQueueCache(cache, time.Minute))
	submitRequest(t, svc, models.RequestTypeOther, "student-1", "")

	// submission invalidates, first read repopulates
	first, err := svc.ListPendingForCommittee(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, cache.sets)

	listsBefore := len(repo.filters)
	second, err := svc.ListPendingForCommittee(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, listsBefore, len(repo.filters), "cached read must not hit the store")
}
