// Package render turns answer markdown into HTML with highlighted,
// copyable code blocks.
package render

import (
	"bytes"
	"html/template"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// DefaultStyle is the chroma style used for code blocks.
const DefaultStyle = "github-dark"

// Class names attached to rendered elements.
const (
	ClassParagraph  = "md-p"
	ClassHeading1   = "md-h1"
	ClassHeading2   = "md-h2"
	ClassList       = "md-ul"
	ClassOrdered    = "md-ol"
	ClassInlineCode = "md-code"
	ClassCodeBlock  = "code-block"
	ClassCopyButton = "copy-btn"
)

// Renderer converts markdown to HTML. It is safe for concurrent use.
type Renderer struct {
	md    goldmark.Markdown
	style string
}

// New creates a Renderer highlighting with style (DefaultStyle when empty).
func New(style string) *Renderer {
	if style == "" {
		style = DefaultStyle
	}
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
				highlighting.WithWrapperRenderer(wrapCodeBlock),
			),
		),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(util.Prioritized(classTransformer{}, 100)),
		),
	)
	return &Renderer{md: md, style: style}
}

// Render converts md to HTML. Raw HTML in the source is not passed through.
func (r *Renderer) Render(md string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md)), err
	}
	return template.HTML(buf.String()), nil
}

// MustRender is Render with the escaped source as the fallback on error.
func (r *Renderer) MustRender(md string) template.HTML {
	out, _ := r.Render(md)
	return out
}

// CSS returns the stylesheet for the highlighted code classes.
func (r *Renderer) CSS() (string, error) {
	style := styles.Get(r.style)
	if style == nil {
		style = styles.Fallback
	}
	var buf strings.Builder
	if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(&buf, style); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// wrapCodeBlock puts every fenced block in a container with a copy button.
// Blocks chroma cannot highlight get a plain pre/code pair.
func wrapCodeBlock(w util.BufWriter, c highlighting.CodeBlockContext, entering bool) {
	if entering {
		_, _ = w.WriteString(`<div class="` + ClassCodeBlock + `">`)
		_, _ = w.WriteString(`<button type="button" class="` + ClassCopyButton + `">Copy</button>`)
		if !c.Highlighted() {
			_, _ = w.WriteString("<pre><code")
			if lang, ok := c.Language(); ok {
				_, _ = w.WriteString(` class="language-`)
				_, _ = w.Write(util.EscapeHTML(lang))
				_, _ = w.WriteString(`"`)
			}
			_, _ = w.WriteString(">")
		}
		return
	}
	if !c.Highlighted() {
		_, _ = w.WriteString("</code></pre>")
	}
	_, _ = w.WriteString("</div>\n")
}

// classTransformer tags paragraphs, h1/h2, lists and inline code.
type classTransformer struct{}

func (classTransformer) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Paragraph:
			node.SetAttributeString("class", []byte(ClassParagraph))
		case *ast.Heading:
			switch node.Level {
			case 1:
				node.SetAttributeString("class", []byte(ClassHeading1))
			case 2:
				node.SetAttributeString("class", []byte(ClassHeading2))
			}
		case *ast.List:
			if node.IsOrdered() {
				node.SetAttributeString("class", []byte(ClassOrdered))
			} else {
				node.SetAttributeString("class", []byte(ClassList))
			}
		case *ast.CodeSpan:
			node.SetAttributeString("class", []byte(ClassInlineCode))
		}
		return ast.WalkContinue, nil
	})
}
