package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template is prompt text with {{name}} placeholders located once at parse time.
type Template struct {
	text  string
	spans [][]int
	vars  []string
}

func Parse(text string) Template {
	t := Template{text: text, spans: variablePattern.FindAllStringSubmatchIndex(text, -1)}
	seen := make(map[string]bool, len(t.spans))
	for _, s := range t.spans {
		name := text[s[2]:s[3]]
		if !seen[name] {
			seen[name] = true
			t.vars = append(t.vars, name)
		}
	}
	return t
}

// Vars returns the placeholder names in order of first use.
func (t Template) Vars() []string { return t.vars }

// Execute substitutes every placeholder in one pass. Values are inserted
// literally, so a value containing "{{x}}" is not expanded again.
func (t Template) Execute(vars map[string]string) (string, error) {
	var missing []string
	for _, v := range t.vars {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	var b strings.Builder
	b.Grow(len(t.text))
	last := 0
	for _, s := range t.spans {
		b.WriteString(t.text[last:s[0]])
		b.WriteString(vars[t.text[s[2]:s[3]]])
		last = s[1]
	}
	b.WriteString(t.text[last:])
	return b.String(), nil
}

func Render(text string, vars map[string]string) (string, error) {
	return Parse(text).Execute(vars)
}

func ExtractVariables(text string) []string {
	return Parse(text).Vars()
}
