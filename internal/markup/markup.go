// Package markup converts rich-text HTML from the about editor into the
// markdown stored on a listing.
package markup

import (
	"context"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/strikethrough"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/rolsen/tinyclassified/internal/errors"
)

// Converter turns submitted HTML into the stored about text.
type Converter interface {
	Convert(ctx context.Context, html string) (string, error)
}

// Heading styles.
const (
	HeadingSetext = "setext"
	HeadingATX    = "atx"
)

// Options shape the markdown output. Remove, Inline and Block classify tags
// the converter has no markdown for.
type Options struct {
	BulletMarker    string
	HeadingStyle    string
	EmDelimiter     string
	StrongDelimiter string
	HorizontalRule  string
	Tables          bool
	Strikethrough   bool

	Remove []string
	Inline []string
	Block  []string
}

// DefaultOptions matches the about editor: "*" bullets, underlined h1/h2,
// "_" emphasis, tables and strikethrough enabled.
func DefaultOptions() Options {
	return Options{
		BulletMarker:    "*",
		HeadingStyle:    HeadingSetext,
		EmDelimiter:     "_",
		StrongDelimiter: "**",
		HorizontalRule:  "---",
		Tables:          true,
		Strikethrough:   true,
		Remove:          []string{"script", "style", "noscript"},
		Inline:          []string{"span", "sup", "sub", "i", "u", "b", "center", "big"},
		Block: []string{
			"div", "form", "fieldset", "dl", "header", "footer", "address",
			"article", "aside", "figure", "hgroup", "section",
			"dt", "dd", "caption", "legend", "figcaption", "output",
			"canvas", "audio", "video",
		},
	}
}

// htmlTagPattern matches common HTML tags to detect if a string contains HTML.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|u|s|del|strong|em|a|ul|ol|li|h[1-6]|blockquote|table|pre|code|hr)[\s>/]`)

// ContainsHTML reports whether s appears to contain HTML markup.
func ContainsHTML(s string) bool {
	return htmlTagPattern.MatchString(strings.ToLower(s))
}

// Markdown is a Converter backed by html-to-markdown.
type Markdown struct {
	conv *converter.Converter
}

// New builds a converter. Invalid options are reported as VALIDATION errors.
func New(opts Options) (*Markdown, error) {
	heading := commonmark.HeadingStyleATX
	switch opts.HeadingStyle {
	case "", HeadingATX:
	case HeadingSetext:
		heading = commonmark.HeadingStyleSetext
	default:
		return nil, errors.Validation("heading style must be setext or atx")
	}

	cmOpts := []commonmark.OptionFunc{commonmark.WithHeadingStyle(heading)}
	if opts.BulletMarker != "" {
		cmOpts = append(cmOpts, commonmark.WithBulletListMarker(opts.BulletMarker))
	}
	if opts.EmDelimiter != "" {
		cmOpts = append(cmOpts, commonmark.WithEmDelimiter(opts.EmDelimiter))
	}
	if opts.StrongDelimiter != "" {
		cmOpts = append(cmOpts, commonmark.WithStrongDelimiter(opts.StrongDelimiter))
	}
	if opts.HorizontalRule != "" {
		cmOpts = append(cmOpts, commonmark.WithHorizontalRule(opts.HorizontalRule))
	}

	plugins := []converter.Plugin{
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(cmOpts...),
	}
	if opts.Tables {
		plugins = append(plugins, table.NewTablePlugin())
	}
	if opts.Strikethrough {
		plugins = append(plugins, strikethrough.NewStrikethroughPlugin())
	}

	conv := converter.NewConverter(converter.WithPlugins(plugins...))
	for _, tag := range opts.Remove {
		conv.Register.TagType(tag, converter.TagTypeRemove, converter.PriorityStandard)
	}
	for _, tag := range opts.Inline {
		conv.Register.TagType(tag, converter.TagTypeInline, converter.PriorityStandard)
	}
	for _, tag := range opts.Block {
		conv.Register.TagType(tag, converter.TagTypeBlock, converter.PriorityStandard)
	}

	// Plugin option errors only surface on the first conversion.
	if _, err := conv.ConvertString(""); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "invalid markdown options")
	}
	return &Markdown{conv: conv}, nil
}

// Convert returns the markdown for html. Input without HTML tags is returned
// unchanged apart from surrounding whitespace.
func (m *Markdown) Convert(ctx context.Context, html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	if !ContainsHTML(html) {
		return strings.TrimSpace(html), nil
	}

	out, err := m.conv.ConvertString(html, converter.WithContext(ctx))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "convert about text")
	}
	return strings.TrimSpace(out), nil
}
