package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/livetemplate/karigar/internal/config"
)

// Field is one text field of the submitted form.
type Field struct {
	Name  string
	Value string
}

// File is one file field of the submitted form.
type File struct {
	Field       string // Form field name (e.g., "photo")
	Filename    string
	ContentType string
	Data        []byte
}

// Payload is the form as submitted, forwarded verbatim as multipart/form-data.
type Payload struct {
	Fields []Field
	Files  []File
}

// Values returns the text fields as a name -> value map (last value wins).
func (p *Payload) Values() map[string]string {
	values := make(map[string]string, len(p.Fields))
	for _, f := range p.Fields {
		values[f.Name] = f.Value
	}
	return values
}

// Result is the backend's answer to a successful generation request.
// Absent fields decode to the empty string.
type Result struct {
	Story      string `json:"story"`
	Social     string `json:"social"`
	MagicPhoto string `json:"magic_photo"`
}

// Generator produces a Result for a Payload.
type Generator interface {
	Generate(ctx context.Context, payload *Payload) (*Result, error)
}

// Client posts form payloads to the generation endpoint.
type Client struct {
	url      string
	client   *http.Client
	maxBytes int64
}

// NewClient creates a client for the backend at baseURL using default settings.
func NewClient(baseURL string) *Client {
	return NewClientWithConfig(config.BackendConfig{URL: baseURL})
}

// NewClientWithConfig creates a client from backend configuration.
func NewClientWithConfig(cfg config.BackendConfig) *Client {
	return &Client{
		url:      cfg.GetURL() + cfg.GetEndpoint(),
		maxBytes: cfg.GetMaxBytes(),
		client: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
	}
}

// URL returns the full endpoint URL.
func (c *Client) URL() string {
	return c.url
}

// Generate sends one POST with the payload as multipart/form-data.
// Failures come back as *NetworkError, *ServerError, or *ParseError. There are
// no retries: every failure is final for the attempt.
func (c *Client) Generate(ctx context.Context, payload *Payload) (*Result, error) {
	body, contentType, err := encodeMultipart(payload)
	if err != nil {
		return nil, &NetworkError{Op: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, &NetworkError{Op: "create request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused; the body is not inspected.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &NetworkError{Op: "read response", Err: err}
	}
	if int64(len(data)) > c.maxBytes {
		return nil, &ParseError{Err: fmt.Errorf("response exceeds %d bytes", c.maxBytes)}
	}

	var result Result
	if err := json.Unmarshal(bytes.TrimSpace(data), &result); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeMultipart writes fields then files into a multipart body.
func encodeMultipart(payload *Payload) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if payload != nil {
		for _, f := range payload.Fields {
			if err := mw.WriteField(f.Name, f.Value); err != nil {
				return nil, "", err
			}
		}
		for _, f := range payload.Files {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
				quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.Filename)))
			ct := f.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			h.Set("Content-Type", ct)
			part, err := mw.CreatePart(h)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(f.Data); err != nil {
				return nil, "", err
			}
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
