package dtos

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iota-uz/lms-admin/pkg/constants"
)

// PreviewDTO holds the non-file fields of a preview upload.
type PreviewDTO struct {
	Delimiter string `form:"delimiter" validate:"required,oneof=semicolon comma tab"`
	Encoding  string `form:"encoding" validate:"omitempty,oneof=auto utf-8 iso-8859-1 windows-1250"`
	Course    int64  `form:"course" validate:"gte=0"`
}

// Normalize trims the fields and fills empty ones from the defaults.
func (d *PreviewDTO) Normalize(delimiter, encoding string) {
	d.Delimiter = strings.ToLower(strings.TrimSpace(d.Delimiter))
	d.Encoding = strings.ToLower(strings.TrimSpace(d.Encoding))
	if d.Delimiter == "" {
		d.Delimiter = delimiter
	}
	if d.Encoding == "" {
		d.Encoding = encoding
	}
}

// Ok reports the offending fields keyed by field name.
func (d *PreviewDTO) Ok() (map[string]string, bool) {
	errorMessages := map[string]string{}
	errs := constants.Validate.Struct(d)
	if errs == nil {
		return errorMessages, true
	}
	var verrs validator.ValidationErrors
	if !errors.As(errs, &verrs) {
		errorMessages["form"] = errs.Error()
		return errorMessages, false
	}
	for _, err := range verrs {
		errorMessages[err.Field()] = err.Tag()
	}
	return errorMessages, len(errorMessages) == 0
}
