package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/livetemplate/livetemplate"

	"github.com/livetemplate/karigar/internal/assets"
	"github.com/livetemplate/karigar/internal/controller"
	"github.com/livetemplate/karigar/internal/view"
)

// statusData is the state the status fragment renders.
type statusData struct {
	State   string
	Message string
}

var statusMessages = map[view.State]string{
	view.Form:    "Ready when you are.",
	view.Loading: "Working on it. This can take a minute.",
	view.Results: "Your story, caption and photoshoot are ready.",
}

func statusFor(v controller.View) statusData {
	return statusData{State: v.State.String(), Message: statusMessages[v.State]}
}

// statusSource returns the status fragment path. A template dir that carries
// status.html.tmpl wins; otherwise the embedded copy is written to a temp
// file, because livetemplate.New parses from files. The returned cleanup
// removes that temp file.
func statusSource(dir string) (string, func(), error) {
	if dir != "" {
		path := filepath.Join(dir, assets.StatusTemplateName)
		if _, err := os.Stat(path); err == nil {
			return path, func() {}, nil
		}
	}

	src, err := assets.GetStatusTemplate()
	if err != nil {
		return "", nil, err
	}
	f, err := os.CreateTemp("", "karigar-status-*.tmpl")
	if err != nil {
		return "", nil, fmt.Errorf("write status template: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(src); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("write status template: %w", err)
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// statusRenderer renders the status fragment for one connection. The
// template remembers what it last sent, so only the first tree carries
// statics and later trees carry the changed dynamics.
type statusRenderer struct {
	tmpl *livetemplate.Template
}

func newStatusRenderer(path string) (*statusRenderer, error) {
	tmpl, err := livetemplate.New("status", livetemplate.WithParseFiles(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", assets.StatusTemplateName, err)
	}
	return &statusRenderer{tmpl: tmpl}, nil
}

// Tree renders v as a livetemplate tree update.
func (r *statusRenderer) Tree(v controller.View) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteUpdates(&buf, statusFor(v)); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

// sessionActions are the actions a page may send over /ws. Each exported
// method with the signature func(*livetemplate.Context) error handles the
// action of the same name, matched case-insensitively.
type sessionActions struct {
	ctrl *controller.Controller
	conn *wsConn
}

// View resends the current view.
func (a *sessionActions) View(ctx *livetemplate.Context) error {
	return a.conn.send(actionView, a.ctrl.View())
}

// Reset returns the session to the form. The reset view reaches the
// connection through its subscription.
func (a *sessionActions) Reset(ctx *livetemplate.Context) error {
	a.ctrl.Reset()
	return nil
}

// dispatchAction routes action to the matching method on target.
func dispatchAction(ctx context.Context, target any, action string, data map[string]interface{}) error {
	lctx := livetemplate.NewContext(ctx, action, data)

	val := reflect.ValueOf(target)
	typ := val.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if !strings.EqualFold(method.Name, action) {
			continue
		}
		// Receiver plus *livetemplate.Context in, error out.
		if method.Type.NumIn() != 2 || method.Type.NumOut() != 1 {
			return fmt.Errorf("method %s has invalid signature", method.Name)
		}
		out := val.Method(i).Call([]reflect.Value{reflect.ValueOf(lctx)})
		if err, _ := out[0].Interface().(error); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("unknown action: %s", action)
}
