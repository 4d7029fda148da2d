package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/classroster/roster-api/internal/models"
	appErrors "github.com/classroster/roster-api/pkg/errors"
	"github.com/classroster/roster-api/pkg/export"
	"github.com/classroster/roster-api/pkg/storage"
)

// ExportFormat selects the rendered file type for roster downloads.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile carries rendered bytes plus download metadata.
type ExportFile struct {
	FileName    string
	ContentType string
	Content     []byte
}

type courseFinder interface {
	FindByCodeAndOwner(ctx context.Context, courseCode string, ownerID int64) (*models.Course, error)
}

type rosterLister interface {
	ListByCourse(ctx context.Context, ownerID int64, courseCode string) ([]models.EnrollmentRecord, error)
}

// ExportService renders course rosters as downloadable CSV or PDF files.
// When an archive is configured, each rendered file is also kept on disk.
type ExportService struct {
	courses     courseFinder
	enrollments rosterLister
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	archive     *storage.LocalStorage
	logger      *zap.Logger
}

// NewExportService constructs ExportService. archive may be nil.
func NewExportService(courses courseFinder, enrollments rosterLister, archive *storage.LocalStorage, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		courses:     courses,
		enrollments: enrollments,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		archive:     archive,
		logger:      logger,
	}
}

// ExportRoster renders the active roster of a course in the requested format.
func (s *ExportService) ExportRoster(ctx context.Context, ownerID int64, courseCode string, format ExportFormat) (*ExportFile, error) {
	course, err := s.courses.FindByCodeAndOwner(ctx, courseCode, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	records, err := s.enrollments.ListByCourse(ctx, ownerID, courseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	roster := buildRoster(records)
	stamp := time.Now().UTC().Format("20060102")
	base := fmt.Sprintf("roster_%s_%s", sanitizeFileName(courseCode), stamp)

	var file *ExportFile
	switch format {
	case ExportFormatCSV:
		content, err := s.csv.Render(roster)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		file = &ExportFile{FileName: base + ".csv", ContentType: "text/csv", Content: content}
	case ExportFormatPDF:
		title := fmt.Sprintf("%s - %s", course.CourseCode, course.CourseName)
		content, err := s.pdf.Render(roster, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		file = &ExportFile{FileName: base + ".pdf", ContentType: "application/pdf", Content: content}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	s.archiveCopy(ownerID, file)
	return file, nil
}

// archiveCopy keeps a best-effort on-disk copy of the rendered export;
// a failed write never fails the download.
func (s *ExportService) archiveCopy(ownerID int64, file *ExportFile) {
	if s.archive == nil {
		return
	}
	name := fmt.Sprintf("%d/%s", ownerID, file.FileName)
	if _, err := s.archive.Save(name, file.Content); err != nil {
		s.logger.Warn("failed to archive export",
			zap.Int64("teacher_id", ownerID),
			zap.String("file", file.FileName),
			zap.Error(err))
	}
}

func buildRoster(records []models.EnrollmentRecord) export.Roster {
	roster := export.Roster{
		Headers: []string{"Student ID", "First Name", "Last Name", "Program", "Status"},
	}
	for _, record := range records {
		roster.Rows = append(roster.Rows, []string{
			strconv.FormatInt(record.StudentID, 10),
			record.FirstName,
			record.LastName,
			record.Program,
			string(record.State()),
		})
	}
	return roster
}

func sanitizeFileName(value string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-")
	return replacer.Replace(value)
}
