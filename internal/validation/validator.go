package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/smartpest-api/internal/apperror"
	"github.com/smartpest-api/internal/auth"
	"github.com/smartpest-api/internal/models"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)
)

// Field length limits
const (
	MaxNameLength      = 100
	MaxEmailLength     = 255
	MaxPestNameLength  = 255
	MaxPasswordLength  = 72 // bcrypt ignores anything longer
	maxCatalogNameSize = 255
)

// ValidateRegistration validates a sign-up payload
func ValidateRegistration(req *models.RegisterRequest) []apperror.FieldError {
	var errors []apperror.FieldError

	errors = append(errors, validateEmail(req.Email)...)

	switch {
	case req.Password == "":
		errors = append(errors, apperror.FieldError{Field: "password", Message: "password is required"})
	case len(req.Password) < auth.MinPasswordLength:
		errors = append(errors, apperror.FieldError{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength),
		})
	case len(req.Password) > MaxPasswordLength:
		errors = append(errors, apperror.FieldError{
			Field:   "password",
			Message: fmt.Sprintf("password must be at most %d bytes", MaxPasswordLength),
		})
	}

	errors = append(errors, validateProfile(&req.FirstName, &req.LastName, &req.Phone)...)
	return errors
}

// ValidateLogin checks that credentials are present
func ValidateLogin(req *models.LoginRequest) []apperror.FieldError {
	var errors []apperror.FieldError
	if strings.TrimSpace(req.Email) == "" {
		errors = append(errors, apperror.FieldError{Field: "email", Message: "email is required"})
	}
	if req.Password == "" {
		errors = append(errors, apperror.FieldError{Field: "password", Message: "password is required"})
	}
	return errors
}

// ValidateUserUpdate validates an admin update; nil fields are skipped
func ValidateUserUpdate(req *models.UpdateUserRequest) []apperror.FieldError {
	errors := validateProfile(req.FirstName, req.LastName, req.Phone)
	if req.Role != nil && !models.ValidRoles[*req.Role] {
		errors = append(errors, apperror.FieldError{
			Field:   "role",
			Message: "invalid role, must be one of: user, admin",
			Value:   *req.Role,
		})
	}
	return errors
}

func validateEmail(email string) []apperror.FieldError {
	switch {
	case email == "":
		return []apperror.FieldError{{Field: "email", Message: "email is required"}}
	case len(email) > MaxEmailLength || !emailRegex.MatchString(email):
		return []apperror.FieldError{{Field: "email", Message: "invalid email format", Value: email}}
	}
	return nil
}

func validateProfile(firstName, lastName, phone *string) []apperror.FieldError {
	var errors []apperror.FieldError
	if firstName != nil && utf8.RuneCountInString(*firstName) > MaxNameLength {
		errors = append(errors, apperror.FieldError{Field: "first_name", Message: "first_name is too long"})
	}
	if lastName != nil && utf8.RuneCountInString(*lastName) > MaxNameLength {
		errors = append(errors, apperror.FieldError{Field: "last_name", Message: "last_name is too long"})
	}
	if phone != nil && *phone != "" && !phoneRegex.MatchString(*phone) {
		errors = append(errors, apperror.FieldError{Field: "phone", Message: "invalid phone number", Value: *phone})
	}
	return errors
}

// ValidateReport validates a report before it is persisted
func ValidateReport(req *models.SaveReportRequest) []apperror.FieldError {
	var errors []apperror.FieldError

	name := strings.TrimSpace(req.PestName)
	if name == "" {
		errors = append(errors, apperror.FieldError{Field: "pest_name", Message: "pest_name is required"})
	} else if utf8.RuneCountInString(name) > MaxPestNameLength {
		errors = append(errors, apperror.FieldError{Field: "pest_name", Message: "pest_name is too long"})
	}

	if req.Confidence == nil {
		errors = append(errors, apperror.FieldError{Field: "confidence", Message: "confidence is required"})
	} else if c := *req.Confidence; math.IsNaN(c) || c < 0 || c > 1 {
		errors = append(errors, apperror.FieldError{
			Field:   "confidence",
			Message: "confidence must be between 0 and 1",
			Value:   c,
		})
	}

	return errors
}

// ValidateFeedback validates a new feedback entry
func ValidateFeedback(req *models.CreateFeedbackRequest) []apperror.FieldError {
	return validateFeedbackFields(&req.Subject, &req.Message, true)
}

// ValidateFeedbackUpdate validates an admin feedback update
func ValidateFeedbackUpdate(req *models.UpdateFeedbackRequest) []apperror.FieldError {
	return validateFeedbackFields(req.Subject, req.Message, false)
}

func validateFeedbackFields(subject, message *string, required bool) []apperror.FieldError {
	var errors []apperror.FieldError

	if subject != nil || required {
		s := ""
		if subject != nil {
			s = strings.TrimSpace(*subject)
		}
		if s == "" {
			errors = append(errors, apperror.FieldError{Field: "subject", Message: "subject is required"})
		} else if utf8.RuneCountInString(s) > models.MaxFeedbackSubjectLength {
			errors = append(errors, apperror.FieldError{
				Field:   "subject",
				Message: fmt.Sprintf("subject exceeds maximum of %d characters", models.MaxFeedbackSubjectLength),
			})
		}
	}

	if message != nil || required {
		m := ""
		if message != nil {
			m = strings.TrimSpace(*message)
		}
		if m == "" {
			errors = append(errors, apperror.FieldError{Field: "message", Message: "message is required"})
		} else if utf8.RuneCountInString(m) > models.MaxFeedbackMessageLength {
			errors = append(errors, apperror.FieldError{
				Field:   "message",
				Message: fmt.Sprintf("message exceeds maximum of %d characters", models.MaxFeedbackMessageLength),
			})
		}
	}

	return errors
}

// ValidatePesticide validates a pesticide payload
func ValidatePesticide(in *models.PesticideInput) []apperror.FieldError {
	var errors []apperror.FieldError

	errors = append(errors, validateCatalogName(in.Name)...)

	if in.ToxicityLevel != "" && !models.ValidToxicityLevels[strings.ToLower(in.ToxicityLevel)] {
		errors = append(errors, apperror.FieldError{
			Field:   "toxicity_level",
			Message: "invalid toxicity_level, must be one of: low, moderate, high, extreme",
			Value:   in.ToxicityLevel,
		})
	}

	return errors
}

// ValidatePest validates a pest payload
func ValidatePest(in *models.PestInput) []apperror.FieldError {
	return validateCatalogName(in.Name)
}

func validateCatalogName(name string) []apperror.FieldError {
	name = strings.TrimSpace(name)
	if name == "" {
		return []apperror.FieldError{{Field: "name", Message: "name is required"}}
	}
	if utf8.RuneCountInString(name) > maxCatalogNameSize {
		return []apperror.FieldError{{Field: "name", Message: "name is too long"}}
	}
	return nil
}

// IsValidUUID checks if a string is a valid UUID
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
