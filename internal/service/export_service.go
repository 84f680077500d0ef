package service

import (
	"context"
	"strings"

	"github.com/acadhub/projhub-api/internal/models"
	"github.com/acadhub/projhub-api/pkg/export"
	appErrors "github.com/acadhub/projhub-api/pkg/errors"
)

// ExportFormat names a supported export encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type requestLister interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error)
}

// ExportResult bundles the rendered document with its content type.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders request history into downloadable documents.
type ExportService struct {
	repo requestLister
	csv  *export.CSVExporter
	pdf  *export.PDFExporter
}

// NewExportService constructs the service.
func NewExportService(repo requestLister) *ExportService {
	return &ExportService{
		repo: repo,
		csv:  export.NewCSVExporter(),
		pdf:  export.NewPDFExporter(),
	}
}

var exportHeaders = []string{"ID", "Type", "Student", "Status", "Reason", "Created", "Updated"}

// ExportRequests renders the matching requests in the requested format.
func (s *ExportService) ExportRequests(ctx context.Context, filter models.RequestFilter, format ExportFormat) (*ExportResult, error) {
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requests for export")
	}

	dataset := export.Dataset{Headers: exportHeaders, Rows: make([]map[string]string, 0, len(requests))}
	for _, request := range requests {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":      request.ID,
			"Type":    string(request.Type),
			"Student": request.StudentID,
			"Status":  string(request.Status),
			"Reason":  request.Reason,
			"Created": request.CreatedAt.UTC().Format("2006-01-02 15:04"),
			"Updated": request.UpdatedAt.UTC().Format("2006-01-02 15:04"),
		})
	}

	switch ExportFormat(strings.ToLower(string(format))) {
	case ExportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: "requests.csv"}, nil
	case ExportFormatPDF:
		content, err := s.pdf.Render(dataset, "Change Requests")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: "requests.pdf"}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
