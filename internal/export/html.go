package export

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/appinfo"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/transcript"
)

//go:embed transcript_template.html
var transcriptTemplateFS embed.FS

type templateData struct {
	AppDisplay  string
	Title       string
	GeneratedAt string
	Messages    []templateMessage
}

type templateMessage struct {
	Sender    string
	Timestamp string
	Body      template.HTML
	Citations string
}

var (
	templateOnce sync.Once
	pageTemplate *template.Template
	templateErr  error
)

func getTemplate() (*template.Template, error) {
	templateOnce.Do(func() {
		b, err := transcriptTemplateFS.ReadFile("transcript_template.html")
		if err != nil {
			templateErr = err
			return
		}
		pageTemplate, templateErr = template.New("transcript_template.html").Parse(string(b))
	})
	return pageTemplate, templateErr
}

var transcriptMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Linkify),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderHTML produces a standalone HTML page for the transcript. Message
// content is treated as markdown.
func RenderHTML(title string, messages []transcript.Message) ([]byte, error) {
	tpl, err := getTemplate()
	if err != nil {
		return nil, err
	}

	data := templateData{
		AppDisplay:  appinfo.Display(),
		Title:       strings.TrimSpace(title),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if data.Title == "" {
		data.Title = "Session transcript"
	}
	for _, msg := range messages {
		var body bytes.Buffer
		if err := transcriptMarkdown.Convert([]byte(msg.Content), &body); err != nil {
			return nil, fmt.Errorf("render message %s: %w", msg.ID, err)
		}
		tm := templateMessage{
			Sender: string(msg.Sender),
			Body:   template.HTML(body.String()), //nolint:gosec
		}
		if !msg.Timestamp.IsZero() {
			tm.Timestamp = msg.Timestamp.UTC().Format("2006-01-02 15:04:05")
		}
		if len(msg.Citations) > 0 {
			tm.Citations = "cites " + strings.Join(msg.Citations, ", ")
		}
		data.Messages = append(data.Messages, tm)
	}

	var out bytes.Buffer
	if err := tpl.Execute(&out, data); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WriteHTML renders the transcript and writes it atomically.
func WriteHTML(path, title string, messages []transcript.Message) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("export path is required")
	}
	data, err := RenderHTML(title, messages)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".transcript.tmp.%d", time.Now().UTC().UnixNano()))
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
