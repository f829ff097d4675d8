package extraction

import (
	"fmt"
	"regexp"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/dictionary"
)

// The source renders some specification values glued straight onto their
// label ("transmission typeautomatic", "fuel92") or in formats a generic
// first-token rule mangles. Those fields get dedicated capture patterns,
// keyed by output column so the special-case list stays closed and
// auditable. Everything else falls through to the kind defaults,
// numericPattern or genericPattern.
var stringPatterns = map[string]string{
	"Traction_Type":     `%s[:\s]*([a-z]+\s+[a-z]+)`,
	"Transmission_Type": `%s[:\s]*([a-z]+)`,
	"Fuel_Type":         `%s[:\s]*([0-9]+|diesel|petrol)`,
	"Year":              `\b%s\b[:\s]*(\d{4})`,
	"Engine_CC":         `\b%s\b[:\s]*(\d+(?:,\d+)*(?:\s*cc)?(?:\s*turbo)?)`,
	"Warranty":          `\b%s\b[:\s]*(\d+(?:,\d+)*\s*km[\s,/]*(?:or\s*)?\d+\s*years?)`,
}

const (
	numericPattern = `%s[:\s]*(\d+(?:\.\d+)?(?:,\d+)*)`
	genericPattern = `\b%s\b[:\s]*([a-z0-9]+(?:[a-z0-9\s/\-]*?[a-z0-9])?)`
)

// matcher is one dictionary mapping with its value pattern precompiled.
// Bool mappings carry no pattern; presence of the key alone sets them.
type matcher struct {
	mapping dictionary.Mapping
	re      *regexp.Regexp
	// fullValue keeps the entire capture; otherwise only the first
	// whitespace-separated token is used.
	fullValue bool
}

func newMatcher(m dictionary.Mapping) matcher {
	if m.Kind == dictionary.KindBool {
		return matcher{mapping: m}
	}

	// Column-specific patterns win over the kind default, so an int
	// column like Year keeps its tight 4-digit capture.
	key := regexp.QuoteMeta(m.Key)
	if p, ok := stringPatterns[m.Column]; ok {
		return matcher{
			mapping:   m,
			re:        regexp.MustCompile(fmt.Sprintf(p, key)),
			fullValue: true,
		}
	}

	if m.Kind == dictionary.KindInt || m.Kind == dictionary.KindFloat {
		return matcher{
			mapping:   m,
			re:        regexp.MustCompile(fmt.Sprintf(numericPattern, key)),
			fullValue: true,
		}
	}
	return matcher{
		mapping: m,
		re:      regexp.MustCompile(fmt.Sprintf(genericPattern, key)),
	}
}
