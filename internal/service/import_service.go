package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/classroster/roster-api/internal/dto"
	"github.com/classroster/roster-api/internal/models"
	"github.com/classroster/roster-api/internal/repository"
	appErrors "github.com/classroster/roster-api/pkg/errors"
)

// Batches whose importable share falls below this fraction of submitted
// rows are rejected outright so a course is never created around an
// incomplete class list.
const lowYieldThreshold = 0.5

type importEnrollmentRepo interface {
	FindForOwnerTx(ctx context.Context, tx *sqlx.Tx, ownerID, studentID int64, courseCode string) (*models.EnrollmentRecord, error)
	FindOtherOwnerTx(ctx context.Context, tx *sqlx.Tx, excludeOwnerID, studentID int64, courseCode string) (*models.EnrollmentOwnership, error)
	InsertTx(ctx context.Context, tx *sqlx.Tx, record *models.EnrollmentRecord) error
	RestoreTx(ctx context.Context, tx *sqlx.Tx, record *models.EnrollmentRecord) error
}

type importCourseRepo interface {
	FindByCodeAndOwnerTx(ctx context.Context, tx *sqlx.Tx, courseCode string, ownerID int64) (*models.Course, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, course *models.Course) error
	UpdateDetailsTx(ctx context.Context, tx *sqlx.Tx, course *models.Course) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type activityRecorder interface {
	Record(ctx context.Context, teacherID int64, entityType, action, entityID, entityName, description string)
}

// ImportService reconciles a submitted class-list batch against existing
// enrollment records inside a single all-or-nothing transaction.
type ImportService struct {
	db          txProvider
	enrollments importEnrollmentRepo
	courses     importCourseRepo
	activity    activityRecorder
	metrics     *MetricsService
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewImportService constructs ImportService.
func NewImportService(db txProvider, enrollments importEnrollmentRepo, courses importCourseRepo, activity activityRecorder, metrics *MetricsService, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ImportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{db: db, enrollments: enrollments, courses: courses, activity: activity, metrics: metrics, cache: cache, validator: validate, logger: logger}
}

// classifiedRow pairs a submitted row with its verdict, preserving the
// original 1-based position for reporting.
type classifiedRow struct {
	index int
	row   dto.RowInput
	class Classification
}

// ImportBatch runs the full reconciliation for one batch on behalf of the
// acting instructor. The returned result is structured for every outcome;
// a non-nil error is reserved for infrastructure failure.
func (s *ImportService) ImportBatch(ctx context.Context, ownerID int64, req dto.ImportRequest) (*dto.ImportResult, error) {
	if len(req.Students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one student row is required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start import transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var (
		valid      []classifiedRow
		duplicates []dto.DuplicateEntry
		rowErrors  []dto.ErrorEntry
	)

	for i, row := range req.Students {
		index := i + 1

		if err := s.validator.Struct(row); err != nil {
			rowErrors = append(rowErrors, dto.ErrorEntry{
				Row:       index,
				StudentID: row.StudentID,
				Error:     "missing or invalid required fields",
			})
			continue
		}

		own, err := s.enrollments.FindForOwnerTx(ctx, tx, ownerID, row.StudentID, row.CourseCode)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to classify row")
		}
		other, err := s.enrollments.FindOtherOwnerTx(ctx, tx, ownerID, row.StudentID, row.CourseCode)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to classify row")
		}

		class := ClassifyRow(own, other)
		switch class.Outcome {
		case RowOutcomeDuplicate:
			duplicates = append(duplicates, dto.DuplicateEntry{
				Row:       index,
				StudentID: row.StudentID,
				Name:      row.FirstName + " " + row.LastName,
				Owner:     class.Owner,
				Reason:    class.Reason,
			})
		default:
			valid = append(valid, classifiedRow{index: index, row: row, class: class})
		}
	}

	total := len(req.Students)

	// Abort before any mutation: a fully rejected batch must not leave a
	// ghost course behind.
	if len(valid) == 0 {
		s.recordBatchMetric("aborted_empty")
		return abortedResult(
			fmt.Sprintf("Import aborted: none of the %d submitted rows can be imported.", total),
			total, duplicates, rowErrors,
		), nil
	}

	if float64(len(valid)) < lowYieldThreshold*float64(total) {
		s.recordBatchMetric("aborted_low_yield")
		return abortedResult(
			fmt.Sprintf("Import aborted: only %d of %d rows are importable; the class list looks incomplete.", len(valid), total),
			total, duplicates, rowErrors,
		), nil
	}

	courseCreated, err := s.ensureCourses(ctx, tx, ownerID, valid, req.CourseInfo)
	if err != nil {
		return nil, err
	}

	successful := 0
	for _, entry := range valid {
		record := &models.EnrollmentRecord{
			StudentID:    entry.row.StudentID,
			FirstName:    entry.row.FirstName,
			LastName:     entry.row.LastName,
			Program:      entry.row.Program,
			CourseCode:   entry.row.CourseCode,
			InstructorID: ownerID,
		}

		var writeErr error
		if entry.class.Outcome == RowOutcomeRestorable {
			record.ID = entry.class.Existing.ID
			record.CreatedAt = entry.class.Existing.CreatedAt
			writeErr = s.enrollments.RestoreTx(ctx, tx, record)
		} else {
			writeErr = s.enrollments.InsertTx(ctx, tx, record)
		}

		if writeErr != nil {
			// Constraint races and other row-level failures stay local to
			// the row; the batch keeps going.
			reason := "failed to write enrollment record"
			if repository.IsUniqueViolation(writeErr) {
				reason = "student was enrolled concurrently by another request"
			}
			s.logger.Warn("import row failed",
				zap.Int64("student_id", entry.row.StudentID),
				zap.String("course", entry.row.CourseCode),
				zap.Error(writeErr))
			rowErrors = append(rowErrors, dto.ErrorEntry{
				Row:       entry.index,
				StudentID: entry.row.StudentID,
				Error:     reason,
			})
			continue
		}
		successful++
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit import")
	}
	committed = true

	courseCode := valid[0].row.CourseCode
	message := fmt.Sprintf("Import completed. %d students imported successfully.", successful)
	if courseCreated {
		message += fmt.Sprintf(" Course '%s' was created automatically.", courseCode)
	}

	s.recordBatchMetric("completed")
	if s.metrics != nil {
		s.metrics.RecordImportRows(successful, len(duplicates), len(rowErrors))
	}
	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Invalidate(ctx, courseCachePattern(ownerID)); err != nil {
			s.logger.Warn("course cache invalidation failed", zap.Int64("teacher_id", ownerID), zap.Error(err))
		}
	}
	if s.activity != nil {
		s.activity.Record(ctx, ownerID, models.ActivityEntityRoster, models.ActivityActionImported, courseCode, courseCode,
			fmt.Sprintf("Imported %d students into %s (%d duplicates, %d errors)", successful, courseCode, len(duplicates), len(rowErrors)))
		if courseCreated {
			s.activity.Record(ctx, ownerID, models.ActivityEntityCourse, models.ActivityActionCreated, courseCode, courseCode,
				fmt.Sprintf("Course %s was created during import", courseCode))
		}
	}

	return &dto.ImportResult{
		Success: true,
		Message: message,
		Summary: dto.ImportSummary{
			TotalProcessed: total,
			Successful:     successful,
			Errors:         len(rowErrors),
			Duplicates:     len(duplicates),
			CourseCreated:  courseCreated,
		},
		Errors:     rowErrors,
		Duplicates: duplicates,
	}, nil
}

// ensureCourses creates or refreshes the caller's section for every course
// code present among the importable rows. Runs only after the batch has
// cleared both abort thresholds.
func (s *ImportService) ensureCourses(ctx context.Context, tx *sqlx.Tx, ownerID int64, valid []classifiedRow, info dto.CourseInfo) (bool, error) {
	created := false
	seen := make(map[string]bool)

	for _, entry := range valid {
		code := entry.row.CourseCode
		if seen[code] {
			continue
		}
		seen[code] = true

		course, err := s.courses.FindByCodeAndOwnerTx(ctx, tx, code, ownerID)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up course")
		}

		if course == nil {
			name := info.CourseName
			if name == "" {
				name = code
			}
			course = &models.Course{
				CourseCode:   code,
				CourseName:   name,
				Schedule:     fallbackPlaceholder(info.Schedule),
				Location:     fallbackPlaceholder(info.Location),
				InstructorID: ownerID,
			}
			if err := s.courses.CreateTx(ctx, tx, course); err != nil {
				return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
			}
			created = true
			continue
		}

		if updateCourseDetails(course, info) {
			if err := s.courses.UpdateDetailsTx(ctx, tx, course); err != nil {
				return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
			}
		}
	}

	return created, nil
}

// updateCourseDetails overwrites schedule and location only when the
// caller supplied real values; placeholders never clobber existing data.
func updateCourseDetails(course *models.Course, info dto.CourseInfo) bool {
	changed := false
	if isRealValue(info.Schedule) && info.Schedule != course.Schedule {
		course.Schedule = info.Schedule
		changed = true
	}
	if isRealValue(info.Location) && info.Location != course.Location {
		course.Location = info.Location
		changed = true
	}
	return changed
}

func isRealValue(v string) bool {
	return v != "" && v != models.PlaceholderValue
}

func fallbackPlaceholder(v string) string {
	if v == "" {
		return models.PlaceholderValue
	}
	return v
}

func (s *ImportService) recordBatchMetric(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordImportBatch(outcome)
	}
}

func abortedResult(message string, total int, duplicates []dto.DuplicateEntry, rowErrors []dto.ErrorEntry) *dto.ImportResult {
	return &dto.ImportResult{
		Success: false,
		Message: message,
		Summary: dto.ImportSummary{
			TotalProcessed: total,
			Successful:     0,
			Errors:         len(rowErrors),
			Duplicates:     len(duplicates),
			CourseCreated:  false,
		},
		Errors:     rowErrors,
		Duplicates: duplicates,
	}
}
