// Package roster models the enrolled people of one course and builds the
// lookup structures the redaction engine matches against.
package roster

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Roles commonly reported by the LMS participant page.
const (
	RoleStudent        = "student"
	RoleTeacher        = "editingteacher"
	RoleNonEditTeacher = "teacher"
)

// StudentIDPattern is the shape of an institutional student ID:
// one letter followed by 7 or 8 digits.
var StudentIDPattern = regexp.MustCompile(`^[A-Za-z][0-9]{7,8}$`)

// Entry is one enrolled person, scoped to (owner, course).
type Entry struct {
	OwnerID     string `db:"owner_id" json:"owner_id" yaml:"owner_id" validate:"required"`
	CourseID    int64  `db:"course_id" json:"course_id" yaml:"course_id" validate:"required,gt=0"`
	IdentityID  int64  `db:"identity_id" json:"identity_id" yaml:"identity_id" validate:"required,gt=0"`
	DisplayName string `db:"display_name" json:"display_name" yaml:"display_name" validate:"required"`
	StudentID   string `db:"student_id" json:"student_id,omitempty" yaml:"student_id,omitempty" validate:"omitempty,studentid"`
	Email       string `db:"email" json:"email,omitempty" yaml:"email,omitempty" validate:"omitempty,email"`
	Role        string `db:"role" json:"role,omitempty" yaml:"role,omitempty"`
}

// HasStudentID reports whether a student ID is on file.
func (e *Entry) HasStudentID() bool { return strings.TrimSpace(e.StudentID) != "" }

// HasEmail reports whether an email is on file.
func (e *Entry) HasEmail() bool { return strings.TrimSpace(e.Email) != "" }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func entryValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("studentid", func(fl validator.FieldLevel) bool {
			return StudentIDPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Validate checks the entry's required fields and the shape of the optional
// identifying fields.
func (e *Entry) Validate() error {
	return entryValidator().Struct(e)
}

// ValidateAll validates a sync batch and checks that every entry belongs to the
// same (owner, course) and that no identity appears twice.
func ValidateAll(ownerID string, courseID int64, entries []Entry) error {
	seen := make(map[int64]bool, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.OwnerID != ownerID || e.CourseID != courseID {
			return fmt.Errorf("entry %d: belongs to owner %q course %d, expected owner %q course %d",
				i, e.OwnerID, e.CourseID, ownerID, courseID)
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d (identity %d): %w", i, e.IdentityID, err)
		}
		if seen[e.IdentityID] {
			return fmt.Errorf("entry %d: duplicate identity %d", i, e.IdentityID)
		}
		seen[e.IdentityID] = true
	}
	return nil
}
