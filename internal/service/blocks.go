package service

import (
	"fmt"
	"html"
	"strings"

	"github.com/flowmail/flowmail-core/internal/domain"
)

// RenderBlocks turns a campaign's ordered content blocks into HTML,
// substituting `{{var}}`-style fields in text content along the way
// (spec.md §4.1 step 4: "header, text, button, divider, image. Unknown
// block types are dropped.").
func RenderBlocks(blocks []domain.EmailBlock, vars TemplateVars) string {
	var b strings.Builder
	for _, block := range blocks {
		switch block.Type {
		case "header":
			renderHeader(&b, block, vars)
		case "text":
			renderText(&b, block, vars)
		case "button":
			renderButton(&b, block, vars)
		case "divider":
			renderDivider(&b)
		case "image":
			renderImage(&b, block)
		default:
			// Unknown block types are dropped, per spec.
		}
	}
	return b.String()
}

func substitute(s string, vars TemplateVars) string {
	b := vars.bindings()
	out := s
	for k, v := range b {
		out = strings.ReplaceAll(out, "{{"+k+"}}", fmt.Sprintf("%v", v))
	}
	return out
}

func renderHeader(b *strings.Builder, block domain.EmailBlock, vars TemplateVars) {
	text := html.EscapeString(substitute(block.Str("text"), vars))
	fmt.Fprintf(b, `<h1 style="font-family:sans-serif;">%s</h1>`, text)
}

func renderText(b *strings.Builder, block domain.EmailBlock, vars TemplateVars) {
	text := substitute(block.Str("text"), vars)
	escaped := html.EscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	fmt.Fprintf(b, `<p style="font-family:sans-serif;">%s</p>`, escaped)
}

func renderButton(b *strings.Builder, block domain.EmailBlock, vars TemplateVars) {
	label := html.EscapeString(substitute(block.Str("label"), vars))
	url := html.EscapeString(block.Str("url"))
	fmt.Fprintf(b, `<a href="%s" style="display:inline-block;padding:12px 20px;background:#111;color:#fff;text-decoration:none;border-radius:4px;">%s</a>`, url, label)
}

func renderDivider(b *strings.Builder) {
	b.WriteString(`<hr style="border:none;border-top:1px solid #ddd;margin:16px 0;">`)
}

func renderImage(b *strings.Builder, block domain.EmailBlock) {
	src := html.EscapeString(block.Str("src"))
	alt := html.EscapeString(block.Str("alt"))
	fmt.Fprintf(b, `<img src="%s" alt="%s" style="max-width:100%%;">`, src, alt)
}
