package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/acadhub/projhub-api/internal/models"
	"github.com/acadhub/projhub-api/internal/service"
	appErrors "github.com/acadhub/projhub-api/pkg/errors"
	"github.com/acadhub/projhub-api/pkg/response"
)

type exportService interface {
	ExportRequests(ctx context.Context, filter models.RequestFilter, format service.ExportFormat) (*service.ExportResult, error)
}

// ExportHandler serves admin downloads of request history.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Export godoc
// @Summary Download request history as CSV or PDF
// @Tags Requests
// @Produce octet-stream
// @Param format query string true "csv or pdf"
// @Param status query string false "Comma separated statuses"
// @Success 200
// @Router /requests/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	filter := models.RequestFilter{Limit: 200}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				filter.Status = append(filter.Status, models.RequestStatus(part))
			}
		}
	}
	if rawType := c.Query("type"); rawType != "" {
		filter.Type = models.RequestType(strings.ToUpper(rawType))
	}

	result, err := h.service.ExportRequests(c.Request.Context(), filter, service.ExportFormat(c.Query("format")))
	if err != nil {
		response.Error(c, err)
		return
	}
	if result == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
