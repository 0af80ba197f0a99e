package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	lib, err := Default()
	require.NoError(t, err)
	require.NoError(t, lib.Validate())

	assert.Equal(t,
		"Hello! I'm your study assistant. I'm ready to help you analyze this chapter. What would you like to know?",
		lib.Reply(ReplyGreeting))
}

func TestRender_Expand(t *testing.T) {
	lib, err := Default()
	require.NoError(t, err)

	out, err := lib.Render(Expand, map[string]string{"count": "4", "query": "what is osmosis"})
	require.NoError(t, err)
	assert.Equal(t, "Generate 4 alternative phrasings of the following query for retrieval:\n\nwhat is osmosis", out)
}

func TestRender_MissingVariable(t *testing.T) {
	lib, err := Default()
	require.NoError(t, err)

	_, err = lib.Render(Answer, map[string]string{"question": "q"})
	assert.ErrorContains(t, err, "context")

	_, err = lib.Render("nope", nil)
	assert.Error(t, err)
}

func TestRender_ValuesAreLiteral(t *testing.T) {
	out, err := Render("Q: {{question}}", map[string]string{"question": "what is {{context}}?"})
	require.NoError(t, err)
	assert.Equal(t, "Q: what is {{context}}?", out)
}

func TestLoad_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
replies:
  greeting: "Hi, ask me anything about this chapter."
`), 0o600))

	lib, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Hi, ask me anything about this chapter.", lib.Reply(ReplyGreeting))
	assert.NotEmpty(t, lib.Templates[Answer])
}

func TestLoad_RejectsUnknownVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  route: "Classify {{message}}"
`), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, `unknown variable "message"`)
}

func TestExtractVariables(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ExtractVariables("{{a}} {{b}} {{a}}"))
}

func TestTemplate_RepeatedPlaceholder(t *testing.T) {
	tmpl := Parse("{{q}} / {{q}} ({{n}})")
	assert.Equal(t, []string{"q", "n"}, tmpl.Vars())

	out, err := tmpl.Execute(map[string]string{"q": "why", "n": "2"})
	require.NoError(t, err)
	assert.Equal(t, "why / why (2)", out)

	_, err = tmpl.Execute(map[string]string{"q": "why"})
	assert.EqualError(t, err, "missing template variables: n")
}
