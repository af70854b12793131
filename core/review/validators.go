package review

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/catalog"
)

var (
	courseCodeTag  = "coursecode"
	courseCodeText = "{0} must be a known course code"
)

// CourseResolver resolves course codes to catalog entries.
type CourseResolver interface {
	Lookup(code string) (catalog.Course, bool)
}

// InitValidators registers the review validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator, courses CourseResolver) {
	_ = validate.RegisterValidation(courseCodeTag, func(fl validator.FieldLevel) bool {
		_, ok := courses.Lookup(fl.Field().String())
		return ok
	})
	core.RegisterCustomTranslation(validate, translator, courseCodeTag, courseCodeText)
}
