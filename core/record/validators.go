package record

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/onhold/core"
)

var (
	recordStatusTag  = "recordstatus"
	recordStatusText = "status must be one of on-hold, added, pending, refunded, discontinued"

	recordIDTag   = "recordid"
	recordIDText  = "record id may only contain letters, digits, dots, underscores and dashes"
	recordIDRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// InitValidators registers the record validations on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(recordStatusTag, recordStatusValidation)
	core.RegisterCustomTranslation(validate, translator, recordStatusTag, recordStatusText)

	_ = validate.RegisterValidation(recordIDTag, recordIDValidation)
	core.RegisterCustomTranslation(validate, translator, recordIDTag, recordIDText)
}

func recordStatusValidation(fl validator.FieldLevel) bool {
	_, ok := NormalizeStatus(fl.Field().String())
	return ok
}

func recordIDValidation(fl validator.FieldLevel) bool {
	return recordIDRegex.MatchString(fl.Field().String())
}
