// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"
	"unicode"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/envsafe/internal/errors"
)

var (
	// folderNameRegex allows names that are safe as a single path segment.
	folderNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

	// tagRegex allows lowercase slugs.
	tagRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// Printable rejects control characters, including newlines and tabs.
var Printable = validation.NewStringRuleWithError(
	func(s string) bool {
		for _, r := range s {
			if unicode.IsControl(r) {
				return false
			}
		}
		return true
	},
	validation.NewError("validation_printable", "must not contain control characters"),
)

// FolderName validates a single folder path segment.
var FolderName = validation.NewStringRuleWithError(
	func(s string) bool {
		return folderNameRegex.MatchString(s)
	},
	validation.NewError(
		"validation_folder_name",
		"must start with a letter or digit and contain only letters, digits, '.', '_' or '-'",
	),
)

// Tag validates a secret tag slug.
var Tag = validation.NewStringRuleWithError(
	func(s string) bool {
		return tagRegex.MatchString(s)
	},
	validation.NewError("validation_tag", "must be a lowercase slug"),
)

// SecretNameRules returns the rules applied to secret names. Names are indexed
// exactly as written, so surrounding whitespace is rejected instead of trimmed.
func SecretNameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(1, 255),
		NotBlank,
		NoWhitespace,
		Printable,
	}
}

// FolderNameRules returns the rules applied to folder names.
func FolderNameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(1, 255),
		FolderName,
	}
}
