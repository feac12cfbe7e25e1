package validator

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

func (v *Validator) registerCustomTranslations() {
	if trans := v.GetTranslator(LangEN); trans != nil {
		for tag, message := range map[string]string{
			TagTopic:      "{0} must be a non-empty topic without control characters",
			TagCollection: "{0} must start with a letter or underscore and contain only letters, digits and underscores",
			TagFilename:   "{0} must be a file name without path separators",
		} {
			registerTranslation(v.validate, trans, tag, message)
		}
	}

	if trans := v.GetTranslator(LangZH); trans != nil {
		for tag, message := range map[string]string{
			TagTopic:      "{0}必须是非空主题且不能包含控制字符",
			TagCollection: "{0}必须以字母或下划线开头，只能包含字母、数字和下划线",
			TagFilename:   "{0}必须是不含路径分隔符的文件名",
		} {
			registerTranslation(v.validate, trans, tag, message)
		}
	}
}

func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, message string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}
