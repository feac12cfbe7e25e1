package validator

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Custom validation tags.
const (
	TagTopic      = "topic"      // non-blank, no control characters, at most 256 runes
	TagCollection = "collection" // Milvus collection name
	TagFilename   = "filename"   // base name with no path separators
)

// MaxTopicLength bounds topic labels.
const MaxTopicLength = 256

var collectionRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,254}$`)

func (v *Validator) registerCustomRules() {
	_ = v.validate.RegisterValidation(TagTopic, validateTopic)
	_ = v.validate.RegisterValidation(TagCollection, validateCollection)
	_ = v.validate.RegisterValidation(TagFilename, validateFilename)
}

// IsTopic reports whether s is a usable topic label.
func IsTopic(s string) bool {
	if strings.TrimSpace(s) == "" || len([]rune(s)) > MaxTopicLength {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// IsCollection reports whether s is a valid collection name.
func IsCollection(s string) bool {
	return collectionRegex.MatchString(s)
}

// IsFilename reports whether s is a bare file name.
func IsFilename(s string) bool {
	if strings.TrimSpace(s) == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && filepath.Base(s) == s
}

func validateTopic(fl validator.FieldLevel) bool {
	return IsTopic(fl.Field().String())
}

func validateCollection(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return IsCollection(value)
}

func validateFilename(fl validator.FieldLevel) bool {
	return IsFilename(fl.Field().String())
}
