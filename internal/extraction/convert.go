package extraction

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/dictionary"
)

var (
	digitRuns    = regexp.MustCompile(`\d+`)
	decimalValue = regexp.MustCompile(`\d+\.?\d*`)
)

// negativeWords are the raw values that mean a feature is absent rather
// than present with value "no".
var negativeWords = map[string]bool{
	"":              true,
	"no":            true,
	"false":         true,
	"n/a":           true,
	"not available": true,
}

// convert turns raw scraped text into a value of the mapping's kind. The
// second return is false when the text holds nothing of that kind; callers
// leave the field absent in that case.
func convert(raw string, kind dictionary.Kind) (any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	switch kind {
	case dictionary.KindInt:
		runs := digitRuns.FindAllString(strings.ReplaceAll(raw, ",", ""), -1)
		if len(runs) == 0 {
			return nil, false
		}
		n, err := strconv.ParseInt(strings.Join(runs, ""), 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true

	case dictionary.KindFloat:
		m := decimalValue.FindString(strings.ReplaceAll(raw, ",", ""))
		if m == "" {
			return nil, false
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil, false
		}
		return f, true

	case dictionary.KindBool:
		return !negativeWords[strings.ToLower(raw)], true

	default:
		return raw, true
	}
}
