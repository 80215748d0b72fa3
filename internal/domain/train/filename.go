package train

import (
	"regexp"
	"strings"
)

var (
	codePattern     = regexp.MustCompile(`\d+`)
	passwordPattern = regexp.MustCompile(`(?i)senha[_\s-]*(\d+)`)
)

// TrainingName is the metadata encoded in a training file's name.
type TrainingName struct {
	Code     string
	Password *string
}

// ParseTrainingName reads the layout code and optional password out of a
// training file name. The code is the first run of digits; a password is
// declared with a "senha" marker followed by digits, as in
// "1553_senha_1234.pdf". Returns ok=false when no code is present.
func ParseTrainingName(name string) (TrainingName, bool) {
	base := name
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}

	var tn TrainingName
	if m := passwordPattern.FindStringSubmatch(base); m != nil {
		pw := m[1]
		tn.Password = &pw
		// The password digits must not be mistaken for the layout code.
		base = strings.Replace(base, m[0], "", 1)
	}

	code := codePattern.FindString(base)
	if code == "" {
		return TrainingName{}, false
	}
	tn.Code = code
	return tn, true
}
