// Package assets embeds the page template, client JavaScript, and CSS
package assets

import (
	"embed"
	"io/fs"
	"path"
)

//go:embed client/*
var clientFS embed.FS

//go:embed templates/*
var templatesFS embed.FS

// IndexTemplateName is the file name of the page template.
const IndexTemplateName = "index.html.tmpl"

// StatusTemplateName is the file name of the live status fragment.
const StatusTemplateName = "status.html.tmpl"

// ClientFS returns the embedded client files
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetClientJS returns the browser relay script
func GetClientJS() ([]byte, error) {
	return clientFS.ReadFile("client/karigar.js")
}

// GetClientCSS returns the page stylesheet
func GetClientCSS() ([]byte, error) {
	return clientFS.ReadFile("client/karigar.css")
}

// GetIndexTemplate returns the embedded page template source
func GetIndexTemplate() ([]byte, error) {
	return templatesFS.ReadFile(path.Join("templates", IndexTemplateName))
}

// GetStatusTemplate returns the embedded status fragment source
func GetStatusTemplate() ([]byte, error) {
	return templatesFS.ReadFile(path.Join("templates", StatusTemplateName))
}

// ContentType returns the MIME type for a client asset name
func ContentType(name string) string {
	switch path.Ext(name) {
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
