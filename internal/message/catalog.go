// Package message renders dispatch reminders from a per-language template
// catalog.
//
// A catalog is a YAML document keyed by language code. Each entry holds
// text/template strings for the parts of a reminder:
//
//	en:
//	  header: "Hello {{.RecipientName}}, these are your tasks for {{.Date}}:"
//	  item: "- {{.Time}} {{.Title}}"
//	  extras_header: "Also pending today:"
//	  extra: "- {{.Title}}"
//	  footer: "Thanks!"
//
// The embedded default catalog covers English and Spanish. A catalog file
// on disk overrides it language by language and can be hot reloaded.
package message

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/facilitydesk/taskdispatch/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// ErrNoTemplates is returned when a catalog defines no languages.
var ErrNoTemplates = errors.New("message catalog has no languages")

// Templates are the raw template strings for one language.
type Templates struct {
	Header       string `yaml:"header"`
	Item         string `yaml:"item"`
	ExtrasHeader string `yaml:"extras_header"`
	Extra        string `yaml:"extra"`
	Footer       string `yaml:"footer"`
}

// Item is one task line in a reminder.
type Item struct {
	Title       string
	Description string

	// Date is the item's display date; OtherDate is set when it differs
	// from the reminder's date.
	Date      string
	OtherDate bool

	// Time is the display start time, empty for untimed items.
	Time string
}

// Reminder is everything needed to render one outbound message.
type Reminder struct {
	RecipientName string
	Language      string
	Date          string
	Items         []Item
	Extras        []Item
}

type compiled struct {
	header, item, extrasHeader, extra, footer *template.Template
}

// Catalog is an immutable set of compiled templates keyed by language.
type Catalog struct {
	langs map[string]*compiled
}

// Parse decodes and compiles a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]Templates
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode message catalog: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoTemplates
	}

	c := &Catalog{langs: make(map[string]*compiled, len(raw))}
	for lang, t := range raw {
		ct, err := compile(lang, t)
		if err != nil {
			return nil, err
		}
		c.langs[strings.ToLower(lang)] = ct
	}
	return c, nil
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded message catalog is invalid: %v", err))
	}
	return c
}

// LoadFile reads a catalog file and layers it over the embedded default.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message catalog: %w", err)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Default().Merge(override), nil
}

// Merge returns a catalog with the languages of other replacing those of c.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := &Catalog{langs: make(map[string]*compiled, len(c.langs)+len(other.langs))}
	for lang, t := range c.langs {
		out.langs[lang] = t
	}
	for lang, t := range other.langs {
		out.langs[lang] = t
	}
	return out
}

// Languages returns the catalog's language codes in sorted order.
func (c *Catalog) Languages() []string {
	langs := make([]string, 0, len(c.langs))
	for lang := range c.langs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Render produces the message text for r in r.Language, falling back to
// the default language.
func (c *Catalog) Render(r Reminder) (string, error) {
	t := c.lookup(r.Language)
	if t == nil {
		return "", fmt.Errorf("no templates for language %q", r.Language)
	}

	var b strings.Builder
	if err := execute(&b, t.header, r); err != nil {
		return "", err
	}
	for _, it := range r.Items {
		b.WriteString("\n")
		if err := execute(&b, t.item, it); err != nil {
			return "", err
		}
	}
	if len(r.Extras) > 0 {
		b.WriteString("\n\n")
		if err := execute(&b, t.extrasHeader, r); err != nil {
			return "", err
		}
		for _, it := range r.Extras {
			b.WriteString("\n")
			if err := execute(&b, t.extra, it); err != nil {
				return "", err
			}
		}
	}

	var footer strings.Builder
	if err := execute(&footer, t.footer, r); err != nil {
		return "", err
	}
	if s := strings.TrimSpace(footer.String()); s != "" {
		b.WriteString("\n\n")
		b.WriteString(s)
	}
	return b.String(), nil
}

func (c *Catalog) lookup(lang string) *compiled {
	if t, ok := c.langs[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return t
	}
	return c.langs[domain.DefaultLanguage]
}

func compile(lang string, t Templates) (*compiled, error) {
	if strings.TrimSpace(t.Header) == "" || strings.TrimSpace(t.Item) == "" {
		return nil, fmt.Errorf("language %q: header and item templates are required", lang)
	}
	if t.Extra == "" {
		t.Extra = t.Item
	}

	ct := &compiled{}
	parts := []struct {
		name string
		text string
		dst  **template.Template
	}{
		{"header", t.Header, &ct.header},
		{"item", t.Item, &ct.item},
		{"extras_header", t.ExtrasHeader, &ct.extrasHeader},
		{"extra", t.Extra, &ct.extra},
		{"footer", t.Footer, &ct.footer},
	}
	for _, p := range parts {
		tmpl, err := template.New(lang + "." + p.name).Option("missingkey=error").Parse(p.text)
		if err != nil {
			return nil, fmt.Errorf("language %q: parse %s template: %w", lang, p.name, err)
		}
		*p.dst = tmpl
	}
	return ct, nil
}

func execute(b *strings.Builder, t *template.Template, data any) error {
	if err := t.Execute(b, data); err != nil {
		return fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return nil
}
