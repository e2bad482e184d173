package composer

import (
	"math/rand"
	"regexp"
	"strings"
)

// spintaxGroup matches an innermost {option|option|...} group. Nested
// groups resolve over successive passes, inside out.
var spintaxGroup = regexp.MustCompile(`\{([^{}]+)\}`)

// maxSpintaxDepth bounds nesting resolution so a malformed template cannot
// loop forever.
const maxSpintaxDepth = 10

// ExpandSpintax resolves every {a|b|c} group in text by picking one option
// at random. Groups may nest: "{Oi|{E aí|Fala}}" resolves the inner group
// first. Runs after Liquid rendering, so single-brace groups never collide
// with {{ variable }} syntax.
func ExpandSpintax(text string, rng *rand.Rand) string {
	if text == "" {
		return text
	}
	for i := 0; i < maxSpintaxDepth && spintaxGroup.MatchString(text); i++ {
		text = spintaxGroup.ReplaceAllStringFunc(text, func(group string) string {
			options := strings.Split(group[1:len(group)-1], "|")
			return strings.TrimSpace(options[rng.Intn(len(options))])
		})
	}
	return text
}

// maxVariants saturates the variant count so deeply nested templates do
// not overflow.
const maxVariants = 10000

// SpintaxVariants counts the distinct expansions of a template, used by
// the template validation endpoint to warn on low-variation sets.
func SpintaxVariants(text string) int {
	total := 1
	for i := 0; i < maxSpintaxDepth && spintaxGroup.MatchString(text); i++ {
		text = spintaxGroup.ReplaceAllStringFunc(text, func(group string) string {
			n := strings.Count(group, "|") + 1
			if total < maxVariants {
				total *= n
			}
			options := strings.Split(group[1:len(group)-1], "|")
			return options[0]
		})
	}
	if total > maxVariants {
		return maxVariants
	}
	return total
}
