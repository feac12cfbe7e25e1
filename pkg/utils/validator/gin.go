package validator

import (
	"reflect"

	"github.com/gin-gonic/gin/binding"
)

// GinValidator adapts Validator to gin's binding.StructValidator.
type GinValidator struct {
	v *Validator
}

var _ binding.StructValidator = (*GinValidator)(nil)

// NewGinValidator wraps v for gin binding.
func NewGinValidator(v *Validator) *GinValidator {
	return &GinValidator{v: v}
}

// ValidateStruct validates structs and pointers to structs; other kinds pass.
func (g *GinValidator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}
	value := reflect.ValueOf(obj)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil
	}
	return g.v.Validate(obj)
}

// Engine returns the underlying validator.Validate.
func (g *GinValidator) Engine() any {
	return g.v.Engine()
}
