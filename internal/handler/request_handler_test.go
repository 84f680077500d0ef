package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/acadhub/projhub-api/internal/dto"
	"github.com/acadhub/projhub-api/internal/middleware"
	"github.com/acadhub/projhub-api/internal/models"
	appErrors "github.com/acadhub/projhub-api/pkg/errors"
	"github.com/acadhub/projhub-api/pkg/response"
)

type requestServiceStub struct {
	submitFn    func(ctx context.Context, req dto.CreateRequestRequest, studentID string) (*models.Request, error)
	decisionFn  func(ctx context.Context, id, approverID string, req dto.DecisionRequest) (*models.Request, error)
	reviewFn    func(ctx context.Context, id, reviewerID string, req dto.ReviewRequest) (*models.Request, error)
	cancelFn    func(ctx context.Context, id, studentID string) error
	getFn       func(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error)
	listFn      func(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.Request, error)
	supQueueFn  func(ctx context.Context, supervisorID string) ([]models.Request, error)
	comQueueFn  func(ctx context.Context) ([]models.Request, error)
	lastStage   string
	lastRequest string
}

func (s *requestServiceStub) Submit(ctx context.Context, req dto.CreateRequestRequest, studentID string) (*models.Request, error) {
	return s.submitFn(ctx, req, studentID)
}

func (s *requestServiceStub) RecordSupervisorDecision(ctx context.Context, id, approverID string, req dto.DecisionRequest) (*models.Request, error) {
	s.lastStage = "supervisor"
	s.lastRequest = id
	return s.decisionFn(ctx, id, approverID, req)
}

func (s *requestServiceStub) RecordCommitteeDecision(ctx context.Context, id, approverID string, req dto.DecisionRequest) (*models.Request, error) {
	s.lastStage = "committee"
	s.lastRequest = id
	return s.decisionFn(ctx, id, approverID, req)
}

func (s *requestServiceStub) Review(ctx context.Context, id, reviewerID string, req dto.ReviewRequest) (*models.Request, error) {
	return s.reviewFn(ctx, id, reviewerID, req)
}

func (s *requestServiceStub) Cancel(ctx context.Context, id, studentID string) error {
	return s.cancelFn(ctx, id, studentID)
}

func (s *requestServiceStub) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error) {
	return s.getFn(ctx, id, actor)
}

func (s *requestServiceStub) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.Request, error) {
	return s.listFn(ctx, query, actor)
}

func (s *requestServiceStub) ListPendingForSupervisor(ctx context.Context, supervisorID string) ([]models.Request, error) {
	return s.supQueueFn(ctx, supervisorID)
}

func (s *requestServiceStub) ListPendingForCommittee(ctx context.Context) ([]models.Request, error) {
	return s.comQueueFn(ctx)
}

func testContext(t *testing.T, method, target string, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, recorder
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	return envelope
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
}

func TestRequestHandlerCreate(t *testing.T) {
	stub := &requestServiceStub{
		submitFn: func(ctx context.Context, req dto.CreateRequestRequest, studentID string) (*models.Request, error) {
			require.Equal(t, "student-1", studentID)
			return &models.Request{ID: "req-1", Status: models.RequestStatusPending}, nil
		},
	}
	h := NewRequestHandler(stub)

	c, recorder := testContext(t, http.MethodPost, "/requests", dto.CreateRequestRequest{
		Type:   models.RequestTypeChangeGroup,
		Reason: "joining the distributed-systems group",
	}, studentClaims())
	h.Create(c)

	require.Equal(t, http.StatusCreated, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	require.Nil(t, envelope.Error)
	require.NotNil(t, envelope.Data)
}

func TestRequestHandlerCreateInvalidBody(t *testing.T) {
	h := NewRequestHandler(&requestServiceStub{})
	c, recorder := testContext(t, http.MethodPost, "/requests", nil, studentClaims())
	c.Request.Body = httptest.NewRequest(http.MethodPost, "/requests", bytes.NewReader([]byte("{not json"))).Body
	h.Create(c)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	require.NotNil(t, envelope.Error)
	require.Equal(t, appErrors.ErrValidation.Code, envelope.Error.Code)
}

func TestRequestHandlerCreateUnauthenticated(t *testing.T) {
	h := NewRequestHandler(&requestServiceStub{})
	c, recorder := testContext(t, http.MethodPost, "/requests", dto.CreateRequestRequest{}, nil)
	h.Create(c)

	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRequestHandlerDecisionRoutesToStage(t *testing.T) {
	approved := true
	stub := &requestServiceStub{
		decisionFn: func(ctx context.Context, id, approverID string, req dto.DecisionRequest) (*models.Request, error) {
			return &models.Request{ID: id, Status: models.RequestStatusSupervisorApproved}, nil
		},
	}
	h := NewRequestHandler(stub)

	c, recorder := testContext(t, http.MethodPost, "/requests/req-7/supervisor-decision", dto.DecisionRequest{Approved: &approved}, &models.JWTClaims{UserID: "sup-1", Role: models.RoleSupervisor})
	c.Params = gin.Params{{Key: "id", Value: "req-7"}}
	h.SupervisorDecision(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "supervisor", stub.lastStage)
	require.Equal(t, "req-7", stub.lastRequest)
}

func TestRequestHandlerDecisionConflict(t *testing.T) {
	approved := false
	stub := &requestServiceStub{
		decisionFn: func(ctx context.Context, id, approverID string, req dto.DecisionRequest) (*models.Request, error) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request already decided")
		},
	}
	h := NewRequestHandler(stub)

	c, recorder := testContext(t, http.MethodPost, "/requests/req-7/committee-decision", dto.DecisionRequest{Approved: &approved}, &models.JWTClaims{UserID: "com-1", Role: models.RoleCommitteeMember})
	c.Params = gin.Params{{Key: "id", Value: "req-7"}}
	h.CommitteeDecision(c)

	require.Equal(t, http.StatusConflict, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, envelope.Error.Code)
}

func TestRequestHandlerCancel(t *testing.T) {
	stub := &requestServiceStub{
		cancelFn: func(ctx context.Context, id, studentID string) error {
			require.Equal(t, "req-3", id)
			require.Equal(t, "student-1", studentID)
			return nil
		},
	}
	h := NewRequestHandler(stub)

	c, recorder := testContext(t, http.MethodPost, "/requests/req-3/cancel", nil, studentClaims())
	c.Params = gin.Params{{Key: "id", Value: "req-3"}}
	h.Cancel(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestRequestHandlerListParsesQuery(t *testing.T) {
	stub := &requestServiceStub{
		listFn: func(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.Request, error) {
			require.Equal(t, models.RequestTypeChangeGroup, query.Type)
			require.Equal(t, []models.RequestStatus{
				models.RequestStatusPending,
				models.RequestStatusSupervisorApproved,
			}, query.Status)
			return []models.Request{}, nil
		},
	}
	h := NewRequestHandler(stub)

	c, recorder := testContext(t, http.MethodGet, "/requests?type=change_group&status=pending,%20supervisor_approved", nil, studentClaims())
	h.List(c)

	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestRequestHandlerCommitteeQueue(t *testing.T) {
	stub := &requestServiceStub{
		comQueueFn: func(ctx context.Context) ([]models.Request, error) {
			return []models.Request{{ID: "req-1"}}, nil
		},
	}
	h := NewRequestHandler(stub)

	c, recorder := testContext(t, http.MethodGet, "/requests/queue/committee", nil, &models.JWTClaims{UserID: "com-1", Role: models.RoleCommitteeHead})
	h.CommitteeQueue(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	require.NotNil(t, envelope.Data)
}
