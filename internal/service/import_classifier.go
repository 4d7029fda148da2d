package service

import (
	"fmt"

	"github.com/classroster/roster-api/internal/models"
)

// RowOutcome is the classifier's verdict for one submitted row.
type RowOutcome string

const (
	// RowOutcomeNew means no record exists for the key; plain insert.
	RowOutcomeNew RowOutcome = "NEW"
	// RowOutcomeRestorable means the caller's own soft-deleted record
	// exists and will be revived instead of inserted.
	RowOutcomeRestorable RowOutcome = "RESTORABLE"
	// RowOutcomeDuplicate means the row is blocked by the duplicate policy.
	RowOutcomeDuplicate RowOutcome = "DUPLICATE"
)

// Classification carries the verdict plus the context needed to act on it.
type Classification struct {
	Outcome  RowOutcome
	Existing *models.EnrollmentRecord
	Owner    string
	Reason   string
}

// ClassifyRow applies the duplicate policy to one row given the two store
// lookups: the caller's own record for (student, course) and any other
// instructor's record for the same key, both including soft-deleted rows.
// The function is pure; the reconciler performs the lookups.
//
// Policy, in order:
//  1. Own record soft-deleted: restorable. Own record active: duplicate.
//  2. Record under any other instructor, active or soft-deleted:
//     duplicate. A student claimed for a course section by one instructor
//     cannot be claimed by another.
//  3. Otherwise: new.
func ClassifyRow(own *models.EnrollmentRecord, other *models.EnrollmentOwnership) Classification {
	if own != nil {
		if own.State() == models.RecordStateSoftDeleted {
			return Classification{Outcome: RowOutcomeRestorable, Existing: own}
		}
		return Classification{
			Outcome: RowOutcomeDuplicate,
			Reason:  "student is already enrolled in this course with you",
		}
	}

	if other != nil {
		return Classification{
			Outcome: RowOutcomeDuplicate,
			Owner:   other.OwnerName,
			Reason: fmt.Sprintf("student is enrolled in this course with %s; a student cannot enroll with multiple instructors",
				other.OwnerName),
		}
	}

	return Classification{Outcome: RowOutcomeNew}
}
