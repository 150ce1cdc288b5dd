package student

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolvax/core"
)

var (
	genderTag  = "gender"
	genderText = "{0} must be one of male, female or other"

	vaxStatusTag  = "vaxstatus"
	vaxStatusText = "{0} must be one of not-vaccinated, partially-vaccinated or fully-vaccinated"

	dobTag  = "dob"
	dobText = "{0} must be a past date"
)

// InitValidators registers the student validators on `validate`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(genderTag, genderValidation)
	core.RegisterCustomTranslation(validate, translator, genderTag, genderText)

	_ = validate.RegisterValidation(vaxStatusTag, vaxStatusValidation)
	core.RegisterCustomTranslation(validate, translator, vaxStatusTag, vaxStatusText)

	validate.RegisterStructValidation(studentStructValidation, NewStudent{}, UpdateStudent{})
	core.RegisterCustomTranslation(validate, translator, dobTag, dobText)
}

// Custom Validators

func genderValidation(fl validator.FieldLevel) bool {
	return Gender(fl.Field().String()).IsValid()
}

func vaxStatusValidation(fl validator.FieldLevel) bool {
	return VaccinationStatus(fl.Field().String()).IsValid()
}

// studentStructValidation does struct level validation on NewStudent and UpdateStudent structs.
func studentStructValidation(sl validator.StructLevel) {
	switch st := sl.Current().Interface().(type) {
	case NewStudent:
		validateDateOfBirth(st.DateOfBirth, sl)
	case UpdateStudent:
		validateDateOfBirth(st.DateOfBirth, sl)
	}
}

// validateDateOfBirth checks that a provided date of birth is set and not in the future.
func validateDateOfBirth(dob *core.Date, sl validator.StructLevel) {
	if dob == nil {
		return
	}
	if dob.IsZero() {
		sl.ReportError(dob, "date_of_birth", "DateOfBirth", "required", "")
		return
	}
	if dob.After(core.DateOf(NowFunc().UTC())) {
		sl.ReportError(dob, "date_of_birth", "DateOfBirth", dobTag, "")
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func containsString(sorted []string, s string) bool {
	for _, item := range sorted {
		if item == s {
			return true
		}
	}
	return false
}
