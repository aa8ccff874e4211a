package core

import (
	"bytes"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

type (
	tmplCacheEntry map[string]interface{}    // {ext: *Template}
	tmplCache      map[string]tmplCacheEntry // {name: {tmplCacheEntry}}

	// MailTemplates holds the parsed email templates.
	MailTemplates struct {
		fsys            fs.FS
		dir             string
		frontendBaseURL string
		strict          bool

		once  sync.Once
		cache tmplCache
		err   error
	}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// NewMailTemplates parses `dir` of `fsys` lazily on first render.
// Files starting with "_" are base layouts; only .txt and .gohtml files are considered.
func NewMailTemplates(fsys fs.FS, dir string, conf *Config) *MailTemplates {
	return &MailTemplates{
		fsys:            fsys,
		dir:             dir,
		frontendBaseURL: conf.FrontendBaseURL,
		strict:          conf.Debug || conf.TestMode,
	}
}

func (mt *MailTemplates) parse() {
	mt.cache = make(tmplCache)

	fps, err := fs.Glob(mt.fsys, path.Join(mt.dir, "*"))
	if err != nil {
		mt.err = errors.Wrap(err, "listing email templates")
		return
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := mt.cache[name]
		if !ok {
			entry = make(tmplCacheEntry)
			mt.cache[name] = entry
		}

		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(mt.fsys, path.Join(mt.dir, "_base.txt"), fp)
			if err != nil {
				mt.err = errors.Wrapf(err, "parsing %s", fname)
				return
			}
			if mt.strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		} else {
			tmpl, err := htmltmpl.ParseFS(mt.fsys, path.Join(mt.dir, "_base.gohtml"), fp)
			if err != nil {
				mt.err = errors.Wrapf(err, "parsing %s", fname)
				return
			}
			if mt.strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		}
	}
}

func (mt *MailTemplates) lookup(name, ext string) (interface{}, bool) {
	entry, ok := mt.cache[name]
	if !ok {
		return nil, false
	}
	tmpl, ok := entry[ext]
	return tmpl, ok
}

// Render fills msg.TextContent and msg.HTMLContent.
func (mt *MailTemplates) Render(msg *EmailMessage) error {
	if msg.BodyStr != "" {
		msg.TextContent = msg.BodyStr
	}
	if msg.TemplateName == "" {
		return nil
	}

	mt.once.Do(mt.parse) // only parse once, during first render
	if mt.err != nil {
		return mt.err
	}
	data := ContextData{FrontendBaseURL: mt.frontendBaseURL, Data: msg.TemplateData}

	if msg.BodyStr == "" {
		if tmpl, ok := mt.lookup(msg.TemplateName, ".txt"); ok {
			var buff bytes.Buffer
			if err := tmpl.(*texttmpl.Template).Execute(&buff, data); err != nil {
				return errors.Wrap(err, "rendering text content")
			}
			msg.TextContent = buff.String()
		}
	}
	if tmpl, ok := mt.lookup(msg.TemplateName, ".gohtml"); ok {
		var buff bytes.Buffer
		if err := tmpl.(*htmltmpl.Template).Execute(&buff, data); err != nil {
			return errors.Wrap(err, "rendering html content")
		}
		msg.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
