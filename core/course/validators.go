package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/simplemooc/core"
)

var (
	matContentTag  = "materialcontent"
	matContentText = "provide either an embedded video or a file, not both"
)

// InitValidators registers the course-specific struct validations and translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(materialStructValidation, NewMaterial{})

	core.RegisterCustomTranslation(validate, translator, matContentTag, matContentText)
}

// materialStructValidation requires exactly one of EmbeddedVideo or File.
func materialStructValidation(sl validator.StructLevel) {
	nm := sl.Current().Interface().(NewMaterial)
	hasVideo := nm.EmbeddedVideo != ""
	hasFile := nm.File != ""
	if hasVideo == hasFile {
		sl.ReportError(nm.EmbeddedVideo, "EmbeddedVideo", "embedded_video", matContentTag, "")
	}
}
