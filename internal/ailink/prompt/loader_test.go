package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	prompts, err := LoadDefaults()
	require.NoError(t, err)
	require.NotEmpty(t, prompts)

	reg, err := NewRegistry(prompts)
	require.NoError(t, err)

	prompt, err := reg.Get(TravelContextSlug)
	require.NoError(t, err)
	require.NotEmpty(t, prompt.Config.SystemTemplate)
	require.Equal(t, []string{"prepare", "local_tips"}, prompt.Config.RequiredSections)
	require.NotNil(t, prompt.Config.Temperature)
	require.InDelta(t, 0.3, *prompt.Config.Temperature, 1e-9)
}

func TestLoadRejectsBadSlug(t *testing.T) {
	_, err := Load("bad.md", []byte("---\nslug: Bad Slug\n---\nbody"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "slug")
}

func TestLoadRequiresSystemTemplate(t *testing.T) {
	_, err := Load("empty.md", []byte("---\nslug: empty\n---\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "system_template")
}

func TestLoadRejectsUnterminatedFrontmatter(t *testing.T) {
	_, err := Load("open.md", []byte("---\nslug: open\nbody"))
	require.Error(t, err)
}

func TestLoadPlainYAML(t *testing.T) {
	prompt, err := Load("plain.yaml", []byte("slug: plain\nsystem_template: be brief\nuser_template: \"Q: {{input}}\"\n"))
	require.NoError(t, err)
	require.Equal(t, "be brief", prompt.Config.SystemTemplate)
}

func TestRender(t *testing.T) {
	prompt, err := Load("p.md", []byte("---\nslug: p\ninput:\n  required_variables: [input]\n  optional_variables: [place]\nuser_template: \"{{input}} near {{place}}\"\n---\nYou help with {{place}}."))
	require.NoError(t, err)

	system, user, err := Render(prompt, map[string]string{"input": "camping", "place": "Abisko"})
	require.NoError(t, err)
	require.Equal(t, "You help with Abisko.", system)
	require.Equal(t, "camping near Abisko", user)

	_, _, err = Render(prompt, map[string]string{"place": "Abisko"})
	require.Error(t, err)
}

func TestRenderDefaultsUserTemplate(t *testing.T) {
	prompt, err := Load("d.md", []byte("---\nslug: d\n---\nsystem"))
	require.NoError(t, err)
	_, user, err := Render(prompt, map[string]string{"input": `{"a":1}`})
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, user)
}

func TestBuildRegistryOverridesFromDir(t *testing.T) {
	dir := t.TempDir()
	custom := "---\nslug: travel-context\nrequired_sections: [prepare]\n---\nCustom system prompt."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "travel.md"), []byte(custom), 0o600))

	reg, err := BuildRegistry(dir)
	require.NoError(t, err)

	prompt, err := reg.Get(TravelContextSlug)
	require.NoError(t, err)
	require.Equal(t, "Custom system prompt.", prompt.Config.SystemTemplate)
	require.Equal(t, []string{TravelContextSlug}, reg.Slugs())
}

func TestBuildRegistryRejectsUnknownOverride(t *testing.T) {
	dir := t.TempDir()
	typo := "---\nslug: travel-contxt\nrequired_sections: [prepare]\n---\nCustom."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "travel.md"), []byte(typo), 0o600))

	_, err := BuildRegistry(dir)
	require.ErrorContains(t, err, "unknown prompt slug")
	require.ErrorContains(t, err, TravelContextSlug)
}

func TestBuildRegistryRejectsTravelOverrideWithoutSections(t *testing.T) {
	dir := t.TempDir()
	custom := "---\nslug: travel-context\n---\nNo sections declared."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "travel.md"), []byte(custom), 0o600))

	_, err := BuildRegistry(dir)
	require.ErrorContains(t, err, "required_sections")
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	a := &Prompt{Config: Config{Slug: "a", SystemTemplate: "x"}}
	_, err := NewRegistry([]*Prompt{a, a})
	require.Error(t, err)
}

func TestTravelPromptResponseSchema(t *testing.T) {
	reg, err := BuildRegistry("")
	require.NoError(t, err)
	def, err := reg.Get(TravelContextSlug)
	require.NoError(t, err)
	require.NotEmpty(t, def.Config.ResponseSchema)

	require.NoError(t, def.ValidateResponse([]byte(`{"prepare":{"visa":"none"},"local_tips":{"tipping":"rare"}}`)))
	require.Error(t, def.ValidateResponse([]byte(`{"prepare":"pack light","local_tips":{"tipping":"rare"}}`)))
	require.Error(t, def.ValidateResponse([]byte(`{"prepare":{},"local_tips":{"tipping":"rare"}}`)))
}

func TestPromptWithoutSchemaAcceptsAnything(t *testing.T) {
	p, err := Load("free.md", []byte("---\nslug: free\n---\nbody"))
	require.NoError(t, err)
	require.NoError(t, p.ValidateResponse([]byte("not even json")))
}
