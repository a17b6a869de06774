package models

// Tone is the tone of voice requested from the description service
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneFriendly     Tone = "friendly"
	ToneFormal       Tone = "formal"
	ToneEnthusiastic Tone = "enthusiastic"
)

// Tones lists the tone options offered by the form, in display order
var Tones = []Tone{ToneProfessional, ToneCasual, ToneFriendly, ToneFormal, ToneEnthusiastic}

// Style is the description style requested from the description service
type Style string

const (
	StyleConcise  Style = "concise"
	StyleDetailed Style = "detailed"
)

// Styles lists the style options offered by the form
var Styles = []Style{StyleConcise, StyleDetailed}

// ParagraphCount is sent with every request; the form does not expose it
const ParagraphCount = "1"

// ImageBlob is an uploaded or imported product image
type ImageBlob struct {
	FileName    string
	ContentType string
	Data        []byte
}

// FormInputs holds the state collected by the description form
type FormInputs struct {
	Image          *ImageBlob
	Features       string
	Tone           Tone
	Style          Style
	ParagraphCount string
}

// DefaultFormInputs returns the form state shown on first load
func DefaultFormInputs() FormInputs {
	return FormInputs{
		Tone:           ToneProfessional,
		Style:          StyleConcise,
		ParagraphCount: ParagraphCount,
	}
}

// ParseTone maps a form value onto a known tone
func ParseTone(value string) (Tone, bool) {
	for _, t := range Tones {
		if string(t) == value {
			return t, true
		}
	}
	return "", false
}

// ParseStyle maps a form value onto a known style
func ParseStyle(value string) (Style, bool) {
	for _, s := range Styles {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}
