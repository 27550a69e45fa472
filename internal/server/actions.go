package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/livetemplate/karigar/internal/config"
	"github.com/livetemplate/karigar/internal/controller"
	"github.com/livetemplate/karigar/internal/generate"
)

const (
	// maxUploadBytes caps a submission body, photo included.
	maxUploadBytes = 32 << 20
	// multipartMemory is how much of a multipart body is kept in memory before spilling to disk.
	multipartMemory = 8 << 20
)

// handleSubmit starts a generation for the session. The response carries the
// Loading view; the outcome arrives over /ws or a later GET of / or /view.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	_, ctrl := s.sessions.Ensure(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	payload, err := payloadFromRequest(r)
	if err != nil {
		log.Printf("[Server] Rejected submission: %v", err)
		writeJSONError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	// The request runs detached from r so navigating away does not cancel it.
	v, run, err := ctrl.Begin(context.Background(), payload)
	switch {
	case errors.Is(err, controller.ErrInFlight):
		writeJSONError(w, http.StatusConflict, "a submission is already in progress")
		return
	case errors.Is(err, controller.ErrShowingResults):
		writeJSONError(w, http.StatusConflict, "reset before submitting again")
		return
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	go func() {
		// Failures are logged and recorded by the controller.
		_ = run()
	}()

	if wantsJSON(r) {
		writeJSON(w, http.StatusAccepted, v)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleReset clears the session back to an empty form.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	_, ctrl := s.sessions.Ensure(w, r)
	v := ctrl.Reset()

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, v)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// payloadFromRequest collects every form field and file in request order
// of field name. Both multipart and urlencoded bodies are accepted.
func payloadFromRequest(r *http.Request) (*generate.Payload, error) {
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, err
	}

	payload := &generate.Payload{}
	values := r.PostForm
	for _, name := range sortedKeys(values) {
		for _, value := range values[name] {
			payload.Fields = append(payload.Fields, generate.Field{Name: name, Value: value})
		}
	}

	if r.MultipartForm == nil {
		return payload, nil
	}
	for _, name := range sortedKeys(r.MultipartForm.File) {
		for _, header := range r.MultipartForm.File[name] {
			if header.Filename == "" && header.Size == 0 {
				continue
			}
			f, err := header.Open()
			if err != nil {
				return nil, fmt.Errorf("open upload %s: %w", name, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read upload %s: %w", name, err)
			}
			payload.Files = append(payload.Files, generate.File{
				Field:       name,
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}
	return payload, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// wantsJSON reports whether the caller is the page script rather than a plain form post.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// backendLabel describes where submissions go, for startup logs.
func backendLabel(cfg config.BackendConfig) string {
	return cfg.GetURL() + cfg.GetEndpoint()
}
