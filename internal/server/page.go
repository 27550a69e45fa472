package server

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/livetemplate/karigar/internal/assets"
	"github.com/livetemplate/karigar/internal/controller"
)

// pageData is what index.html.tmpl renders.
type pageData struct {
	Title       string
	Description string
	Tones       []string
	View        controller.View
	Status      string
	// ImageURL carries View.ImageSrc typed as a URL so html/template keeps the data: scheme.
	ImageURL template.URL
}

func (s *Server) pageData(v controller.View) pageData {
	return pageData{
		Title:       s.config.Title,
		Description: s.config.Description,
		Tones:       s.config.Form.GetTones(),
		View:        v,
		Status:      statusFor(v).Message,
		ImageURL:    imageURL(v.ImageSrc),
	}
}

// imageURL only trusts values the controller built from the PNG prefix.
func imageURL(src string) template.URL {
	if len(src) < len(controller.ImagePrefix) || src[:len(controller.ImagePrefix)] != controller.ImagePrefix {
		return ""
	}
	return template.URL(src)
}

// pageRenderer holds the parsed page template. When dir is set the template
// is read from disk and can be reloaded; otherwise the embedded copy is used.
type pageRenderer struct {
	mu   sync.RWMutex
	tmpl *template.Template
	dir  string
}

func newPageRenderer(dir string) (*pageRenderer, error) {
	p := &pageRenderer{dir: dir}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-parses the template. On failure the previous template stays active.
func (p *pageRenderer) Reload() error {
	src, err := p.source()
	if err != nil {
		return err
	}
	tmpl, err := template.New(assets.IndexTemplateName).Parse(string(src))
	if err != nil {
		return fmt.Errorf("parse %s: %w", assets.IndexTemplateName, err)
	}

	p.mu.Lock()
	p.tmpl = tmpl
	p.mu.Unlock()
	return nil
}

func (p *pageRenderer) source() ([]byte, error) {
	if p.dir == "" {
		return assets.GetIndexTemplate()
	}
	path := filepath.Join(p.dir, assets.IndexTemplateName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return data, nil
}

// Render executes the template into a buffer first so a failed render
// never leaves a half-written page.
func (p *pageRenderer) Render(w io.Writer, data pageData) error {
	p.mu.RLock()
	tmpl := p.tmpl
	p.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func readAsset(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrNotExist
	}
	return fs.ReadFile(assets.ClientFS(), name)
}
