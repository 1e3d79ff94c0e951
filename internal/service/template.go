package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/osteele/liquid"
)

// Render size/time limits, mirroring the teacher's secure-liquid wrapper:
// untrusted template bodies never get unbounded engine time.
const (
	renderTimeout   = 5 * time.Second
	maxTemplateSize = 100 * 1024
)

// TemplateEngine renders `{{var}}`-style substitution bodies with a timeout
// and size guard (spec.md §4.1 step 4: "plain body with {{var}} substitution
// and line-break preservation").
type TemplateEngine struct {
	engine *liquid.Engine
}

// NewTemplateEngine builds the shared liquid engine.
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{engine: liquid.NewEngine()}
}

// TemplateVars is the fixed variable set every render pass receives
// (spec.md §4.1 step 3).
type TemplateVars struct {
	FirstName   string
	LastName    string
	Email       string
	CompanyName string
	SenderName  string
}

func (v TemplateVars) bindings() map[string]interface{} {
	return map[string]interface{}{
		"firstName":   v.FirstName,
		"lastName":    v.LastName,
		"email":       v.Email,
		"companyName": v.CompanyName,
		"senderName":  v.SenderName,
	}
}

// RenderBody substitutes `{{var}}` placeholders into a plain-text body and
// converts newlines to <br> to preserve line breaks in the rendered HTML.
func (t *TemplateEngine) RenderBody(ctx context.Context, body string, vars TemplateVars) (string, error) {
	rendered, err := t.renderWithTimeout(ctx, body, vars.bindings())
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(rendered, "\n", "<br>"), nil
}

func (t *TemplateEngine) renderWithTimeout(ctx context.Context, content string, bindings map[string]interface{}) (string, error) {
	if len(content) > maxTemplateSize {
		return "", fmt.Errorf("template size (%d bytes) exceeds maximum allowed size (%d bytes)", len(content), maxTemplateSize)
	}

	renderCtx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	resultChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("panic during template rendering: %v", r)
			}
		}()
		out, err := t.engine.ParseAndRenderString(content, bindings)
		if err != nil {
			errChan <- fmt.Errorf("template parse/render failed: %w", err)
			return
		}
		resultChan <- out
	}()

	select {
	case out := <-resultChan:
		return out, nil
	case err := <-errChan:
		return "", err
	case <-renderCtx.Done():
		return "", fmt.Errorf("template rendering timeout after %v", renderTimeout)
	}
}
