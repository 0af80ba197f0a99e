package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template names.
const (
	Contextualize = "contextualize"
	Route         = "route"
	Expand        = "expand"
	Answer        = "answer"
)

// Reply names.
const (
	ReplyGreeting     = "greeting"
	ReplySummary      = "summary"
	ReplyAmbiguous    = "ambiguous"
	ReplyRefreshing   = "refreshing"
	ReplyInitializing = "initializing"
	ReplyReupload     = "reupload"
	ReplyFailure      = "failure"
	ReplyBlocked      = "blocked"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// requiredVars lists the placeholders each template must accept.
var requiredVars = map[string][]string{
	Contextualize: {"history", "question"},
	Route:         {"question"},
	Expand:        {"count", "query"},
	Answer:        {"context", "question"},
}

var requiredReplies = []string{
	ReplyGreeting, ReplySummary, ReplyAmbiguous, ReplyRefreshing,
	ReplyInitializing, ReplyReupload, ReplyFailure, ReplyBlocked,
}

// Library holds prompt templates and canned replies loaded from YAML.
type Library struct {
	Templates map[string]string `yaml:"templates"`
	Replies   map[string]string `yaml:"replies"`
}

// Default returns the built-in library.
func Default() (*Library, error) {
	return parse(defaultPrompts)
}

// Load returns the built-in library with entries from path layered on top.
// An empty path returns the built-in library.
func Load(path string) (*Library, error) {
	lib, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return lib, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts %s: %w", path, err)
	}
	override, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("prompts %s: %w", path, err)
	}
	for k, v := range override.Templates {
		lib.Templates[k] = v
	}
	for k, v := range override.Replies {
		lib.Replies[k] = v
	}
	if err := lib.Validate(); err != nil {
		return nil, fmt.Errorf("prompts %s: %w", path, err)
	}
	return lib, nil
}

func parse(data []byte) (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if lib.Templates == nil {
		lib.Templates = map[string]string{}
	}
	if lib.Replies == nil {
		lib.Replies = map[string]string{}
	}
	return &lib, nil
}

// Validate checks that every template and reply the pipeline uses is present
// and that templates only reference known placeholders.
func (l *Library) Validate() error {
	var problems []string
	names := make([]string, 0, len(requiredVars))
	for name := range requiredVars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tmpl, ok := l.Templates[name]
		if !ok || strings.TrimSpace(tmpl) == "" {
			problems = append(problems, fmt.Sprintf("template %q missing", name))
			continue
		}
		allowed := make(map[string]bool)
		for _, v := range requiredVars[name] {
			allowed[v] = true
		}
		for _, v := range ExtractVariables(tmpl) {
			if !allowed[v] {
				problems = append(problems, fmt.Sprintf("template %q uses unknown variable %q", name, v))
			}
		}
	}
	for _, name := range requiredReplies {
		if strings.TrimSpace(l.Replies[name]) == "" {
			problems = append(problems, fmt.Sprintf("reply %q missing", name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid prompt library: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Render fills the named template.
func (l *Library) Render(name string, vars map[string]string) (string, error) {
	tmpl, ok := l.Templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	out, err := Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}

func (l *Library) Reply(name string) string {
	return strings.TrimSpace(l.Replies[name])
}
