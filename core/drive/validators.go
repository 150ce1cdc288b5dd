package drive

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolvax/core"
)

var (
	classLabelTag   = "classlabel"
	classLabelText  = "{0} must contain class labels of at most 20 letters, digits, spaces, '-' or '_'"
	classLabelRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _-]{0,19}$`)

	driveStatusTag  = "drivestatus"
	driveStatusText = "{0} must be one of scheduled, in-progress, completed or cancelled"
)

// InitValidators registers the drive validators on `validate`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(classLabelTag, classLabelValidation)
	core.RegisterCustomTranslation(validate, translator, classLabelTag, classLabelText)

	_ = validate.RegisterValidation(driveStatusTag, driveStatusValidation)
	core.RegisterCustomTranslation(validate, translator, driveStatusTag, driveStatusText)
}

// Custom Validators

func classLabelValidation(fl validator.FieldLevel) bool {
	return classLabelRegex.MatchString(fl.Field().String())
}

func driveStatusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).IsValid()
}
