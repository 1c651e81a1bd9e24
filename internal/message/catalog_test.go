package message

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"en", "es"}, c.Languages())
}

func TestRender(t *testing.T) {
	c := Default()

	r := Reminder{
		RecipientName: "Ana",
		Language:      "en",
		Date:          "2026-10-14",
		Items: []Item{
			{Title: "Check boiler", Description: "Room B2", Date: "2026-10-14", Time: "14:00"},
			{Title: "Replace filter", Date: "2026-10-15", OtherDate: true, Time: "09:30"},
		},
		Extras: []Item{{Title: "Restock gloves", Date: "2026-10-14"}},
	}

	got, err := c.Render(r)
	require.NoError(t, err)

	want := "Hello Ana, these are your tasks for 2026-10-14:\n" +
		"- 14:00 Check boiler: Room B2\n" +
		"- 09:30 Replace filter (2026-10-15)\n" +
		"\n" +
		"Also pending today:\n" +
		"- Restock gloves\n" +
		"\n" +
		"Please mark each task as received when you start it."
	assert.Equal(t, want, got)
}

func TestRender_LanguageFallback(t *testing.T) {
	c := Default()
	r := Reminder{RecipientName: "Luc", Language: "fr", Date: "2026-10-14",
		Items: []Item{{Title: "Sweep hall", Time: "10:00"}}}

	got, err := c.Render(r)
	require.NoError(t, err)
	assert.Contains(t, got, "Hello Luc")
	assert.NotContains(t, got, "Also pending")
}

func TestRender_Spanish(t *testing.T) {
	c := Default()
	got, err := c.Render(Reminder{RecipientName: "Ana", Language: "ES", Date: "2026-10-14",
		Items: []Item{{Title: "Revisar caldera", Time: "14:00"}}})
	require.NoError(t, err)
	assert.Contains(t, got, "Hola Ana")
	assert.Contains(t, got, "- 14:00 Revisar caldera")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not yaml", "en: [unclosed"},
		{"missing item", "en:\n  header: hi\n"},
		{"bad template", "en:\n  header: \"{{.Name\"\n  item: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrNoTemplates)
}

func TestParse_ExtraDefaultsToItem(t *testing.T) {
	c, err := Parse([]byte("en:\n  header: \"Hi {{.RecipientName}}\"\n  item: \"* {{.Title}}\"\n"))
	require.NoError(t, err)

	got, err := c.Render(Reminder{RecipientName: "Ana", Items: []Item{{Title: "a"}}, Extras: []Item{{Title: "b"}}})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana\n* a\n\n\n* b", got)
}

func TestLoadFile_OverridesLanguage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("en:\n  header: \"Tasks for {{.RecipientName}}\"\n  item: \"> {{.Title}}\"\n"), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "es"}, c.Languages())

	got, err := c.Render(Reminder{RecipientName: "Ana", Items: []Item{{Title: "Sweep"}}})
	require.NoError(t, err)
	assert.Equal(t, "Tasks for Ana\n> Sweep", got)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
