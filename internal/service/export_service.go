package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/slotbook-api/internal/availability"
	"github.com/noah-isme/slotbook-api/internal/dto"
	"github.com/noah-isme/slotbook-api/internal/models"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
	"github.com/noah-isme/slotbook-api/pkg/export"
)

const (
	exportPageSize = 200
	exportMaxRows  = 5000
)

type bookingPager interface {
	ListByHost(ctx context.Context, hostID string, query dto.ListBookingsQuery) ([]models.Booking, *models.Pagination, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// ExportService renders a host's agenda as CSV or PDF.
type ExportService struct {
	bookings bookingPager
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(bookings bookingPager, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{bookings: bookings, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

var agendaHeaders = []string{"Start", "End", "Status", "Invitee", "Email", "Invitee timezone", "Join link", "Booking ID"}

// Agenda renders every booking matching query. Times are shown in query.Timezone, UTC by default.
func (s *ExportService) Agenda(ctx context.Context, hostID string, query dto.ListBookingsQuery) (*dto.ExportFile, error) {
	format := query.Format
	if format == "" {
		format = "csv"
	}
	loc, err := availability.LoadLocation(query.Timezone, time.UTC)
	if err != nil {
		return nil, withCause(appErrors.ErrValidation, "unknown timezone", err)
	}

	data := export.Dataset{Title: "Booking agenda", Headers: agendaHeaders}
	query.PageSize = exportPageSize
	for page := 1; ; page++ {
		query.Page = page
		items, pagination, err := s.bookings.ListByHost(ctx, hostID, query)
		if err != nil {
			return nil, err
		}
		for _, b := range items {
			data.Rows = append(data.Rows, agendaRow(b, loc))
		}
		if len(items) == 0 || page*exportPageSize >= pagination.TotalCount {
			break
		}
		if len(data.Rows) >= exportMaxRows {
			s.logger.Warn("agenda export truncated", zap.String("host_id", hostID), zap.Int("rows", len(data.Rows)))
			break
		}
	}

	var (
		content     []byte
		contentType string
	)
	switch format {
	case "csv":
		content, err = s.csv.Render(data)
		contentType = s.csv.ContentType()
	case "pdf":
		content, err = s.pdf.Render(data)
		contentType = s.pdf.ContentType()
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err != nil {
		return nil, withCause(appErrors.ErrInternal, "failed to render agenda", err)
	}

	return &dto.ExportFile{
		Filename:    fmt.Sprintf("agenda-%s.%s", s.now().UTC().Format("20060102-150405"), format),
		ContentType: contentType,
		Content:     content,
	}, nil
}

func agendaRow(b models.Booking, loc *time.Location) []string {
	join := ""
	if b.JoinURL != nil {
		join = *b.JoinURL
	}
	return []string{
		b.StartAt.In(loc).Format("2006-01-02 15:04 MST"),
		b.EndAt.In(loc).Format("2006-01-02 15:04 MST"),
		string(b.Status),
		b.InviteeName,
		b.InviteeEmail,
		b.InviteeTimezone,
		join,
		b.ID,
	}
}
