package core

import (
	"bytes"
	"encoding/base64"
	"fmt"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"net/http"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/coursereview/fs"
)

const templatesDir = "templates/email"

var (
	templates       tmplCache
	frontendBaseURL string
	tmplMu          sync.RWMutex

	errTemplatesNotParsed = errors.New("email templates not parsed")
)

type (
	// executor is satisfied by both text and html templates.
	executor interface {
		Execute(w io.Writer, data interface{}) error
	}

	tmplCache map[string]map[string]executor // {name: {ext: template}}

	Attachment struct {
		Content     *bytes.Buffer
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // plain text body, used instead of the text template
		Attachments []Attachment

		TemplateName string // file name under templates/email, minus the extension
		TemplateData interface{}

		// filled by Render
		TextContent string
		HTMLContent string
	}

	// ContextData is the root object templates are executed with.
	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService delivers messages. Delivery is asynchronous and failures are only logged.
	EmailService interface {
		SendMessages(messages ...*EmailMessage)
	}
)

// render executes the template of m with the given extension. A missing template renders nothing.
func (m *EmailMessage) render(ext string) (string, error) {
	tmplMu.RLock()
	tmpl, ok := templates[m.TemplateName][ext]
	data := ContextData{FrontendBaseURL: frontendBaseURL, Data: m.TemplateData}
	tmplMu.RUnlock()
	if !ok {
		return "", nil
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, data); err != nil {
		return "", errors.Wrapf(err, "rendering %s%s", m.TemplateName, ext)
	}
	return buff.String(), nil
}

// Render fills TextContent and HTMLContent. BodyStr, when set, is used as the text content as is.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	tmplMu.RLock()
	parsed := templates != nil
	tmplMu.RUnlock()
	if !parsed {
		return errTemplatesNotParsed
	}

	var err error
	if m.BodyStr == "" {
		if m.TextContent, err = m.render(".txt"); err != nil {
			return err
		}
	}
	m.HTMLContent, err = m.render(".gohtml")
	return err
}

// Attach adds the content of r as a base64 encoded attachment.
// The content type is sniffed from the content unless given.
func (m *EmailMessage) Attach(r io.Reader, filename string, ct ...string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "reading attachment %s", filename)
	}
	contentType := http.DetectContentType(content)
	if len(ct) > 0 && ct[0] != "" {
		contentType = ct[0]
	}
	m.Attachments = append(m.Attachments, Attachment{
		Filename:    filename,
		ContentType: contentType,
		Content:     bytes.NewBufferString(base64.StdEncoding.EncodeToString(content)),
	})
	return nil
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return (m.TextContent != "") || (m.HTMLContent != "") }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }

// ParseEmailTemplates parses the embedded email templates.
// Every template is parsed together with its `_base` layout of the same extension.
func ParseEmailTemplates(conf *Config, logger Logger) {
	if err := parseTemplates(appfs.FS, conf); err != nil {
		logger.Error(fmt.Sprintf("parsing email templates: %v", err), err)
	}
}

func parseTemplates(fsys fs.FS, conf *Config) error {
	cache := make(tmplCache)

	fps, err := fs.Glob(fsys, path.Join(templatesDir, "*"))
	if err != nil {
		return errors.Wrap(err, "listing templates")
	}

	strict := conf.Debug || conf.TestMode
	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		if cache[name] == nil {
			cache[name] = make(map[string]executor)
		}
		tmpl, err := parseTemplate(fsys, ext, path.Join(templatesDir, "_base"+ext), fp, strict)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", fname)
		}
		cache[name][ext] = tmpl
	}

	tmplMu.Lock()
	templates = cache
	frontendBaseURL = conf.FrontendBaseURL
	tmplMu.Unlock()
	return nil
}

// parseTemplate parses fp with its layout, as html for .gohtml and as text otherwise.
func parseTemplate(fsys fs.FS, ext, base, fp string, strict bool) (executor, error) {
	opt := "missingkey=default"
	if strict {
		opt = "missingkey=error"
	}
	if ext == ".gohtml" {
		tmpl, err := htmltmpl.ParseFS(fsys, base, fp)
		if err != nil {
			return nil, err
		}
		return tmpl.Option(opt), nil
	}
	tmpl, err := texttmpl.ParseFS(fsys, base, fp)
	if err != nil {
		return nil, err
	}
	return tmpl.Option(opt), nil
}
