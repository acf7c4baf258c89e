// Copyright (c) 2026 Arquiva Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package render converts a message body to PDF. The conversion itself is an
// external collaborator: the default implementation shells out to a
// configured HTML-to-PDF command (e.g. wkhtmltopdf or weasyprint).
package render

import (
	"context"
	"fmt"
	"html"
	"os"
	"os/exec"
	"strings"

	"github.com/arquiva/ingestion/internal/models"
)

// PDFFileName is the rendered body's name inside the working directory.
const PDFFileName = "email.pdf"

// Renderer converts a message body to a PDF file at outputPath.
type Renderer interface {
	Render(ctx context.Context, body models.EmailBody, outputPath string) error
}

// stylesheet is the minimal CSS wrapped around HTML bodies before conversion.
const stylesheet = `body { font-family: sans-serif; font-size: 11pt; margin: 1.5cm; }
pre { white-space: pre-wrap; word-wrap: break-word; }
img { max-width: 100%; }`

// CommandRenderer renders via an external conversion command invoked as
// `command input.html output.pdf`.
type CommandRenderer struct {
	command string
}

// NewCommandRenderer creates a renderer backed by the given command.
func NewCommandRenderer(command string) *CommandRenderer {
	return &CommandRenderer{command: command}
}

// Render writes the prepared HTML next to outputPath and invokes the
// conversion command. HTML bodies are wrapped in the minimal stylesheet;
// plain-text bodies are escaped and laid out in a <pre> block.
func (r *CommandRenderer) Render(ctx context.Context, body models.EmailBody, outputPath string) error {
	doc := PrepareHTML(body)

	htmlPath := strings.TrimSuffix(outputPath, ".pdf") + ".html"
	if err := os.WriteFile(htmlPath, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write render input: %w", err)
	}
	defer os.Remove(htmlPath)

	cmd := exec.CommandContext(ctx, r.command, htmlPath, outputPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("render command %q failed: %w: %s", r.command, err, string(out))
	}
	return nil
}

// PrepareHTML produces the HTML document handed to the converter.
func PrepareHTML(body models.EmailBody) string {
	content := body.Content
	if !body.IsHTML() {
		content = "<pre>" + html.EscapeString(content) + "</pre>"
	}

	// Already a complete document: inject only the stylesheet.
	if strings.Contains(strings.ToLower(content), "<html") {
		return strings.Replace(content, "<head>",
			"<head>\n<style>"+stylesheet+"</style>", 1)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>%s</style>
</head>
<body>
%s
</body>
</html>
`, stylesheet, content)
}
