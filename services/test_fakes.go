package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/outlivion/portal/core"
)

// FakeResponse is one scripted backend reply. Err, when set, is returned
// as is; otherwise Body is encoded and decoded into the caller's out.
type FakeResponse struct {
	Body any
	Err  error
}

// FakeCall records one call made against FakeBackend.
type FakeCall struct {
	Method string
	Path   string
	Body   []byte
}

// FakeBackend is a test-only fake implementing core.Backend. Replies are
// scripted per method and path; the last reply for a route repeats.
type FakeBackend struct {
	mu        sync.Mutex
	responses map[string][]FakeResponse
	calls     []FakeCall
	onCall    func(FakeCall)
}

var _ core.Backend = (*FakeBackend)(nil)

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{responses: make(map[string][]FakeResponse)}
}

// FakeError builds a reply carrying an APIError with the given status.
func FakeError(status int, message string) FakeResponse {
	return FakeResponse{Err: &core.APIError{Status: status, Message: message}}
}

func (f *FakeBackend) On(method, path string, responses ...FakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = append(f.responses[method+" "+path], responses...)
}

// OnCall registers a hook run before every reply, outside the lock.
func (f *FakeBackend) OnCall(hook func(FakeCall)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCall = hook
}

func (f *FakeBackend) Calls(method, path string) []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FakeCall
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeBackend) Get(ctx context.Context, path string, out any) error {
	return f.do(ctx, http.MethodGet, path, nil, out)
}

func (f *FakeBackend) Post(ctx context.Context, path string, body, out any) error {
	return f.do(ctx, http.MethodPost, path, body, out)
}

func (f *FakeBackend) Delete(ctx context.Context, path string, out any) error {
	return f.do(ctx, http.MethodDelete, path, nil, out)
}

func (f *FakeBackend) do(ctx context.Context, method, path string, body, out any) error {
	call := FakeCall{Method: method, Path: path}
	if body != nil {
		call.Body, _ = json.Marshal(body)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	hook := f.onCall
	key := method + " " + path
	queue := f.responses[key]
	var resp FakeResponse
	found := len(queue) > 0
	if found {
		resp = queue[0]
		if len(queue) > 1 {
			f.responses[key] = queue[1:]
		}
	}
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err := ctx.Err(); err != nil {
		return &core.APIError{Status: 0, Code: core.CodeNetworkError, Message: "request cancelled", Err: err}
	}
	if !found {
		return &core.APIError{Status: http.StatusNotFound, Message: "no fake reply for " + key}
	}
	if resp.Err != nil {
		return resp.Err
	}
	if out == nil || resp.Body == nil {
		return nil
	}
	b, err := json.Marshal(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// RecordingNavigator is a test-only core.Navigator that records every
// navigation.
type RecordingNavigator struct {
	mu        sync.Mutex
	current   string
	navigated []string
	redirects []string
	notify    chan string
}

var _ core.Navigator = (*RecordingNavigator)(nil)

func NewRecordingNavigator(current string) *RecordingNavigator {
	return &RecordingNavigator{current: current, notify: make(chan string, 16)}
}

func (n *RecordingNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *RecordingNavigator) SetCurrentPath(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = path
}

func (n *RecordingNavigator) Navigate(path string) {
	n.mu.Lock()
	n.navigated = append(n.navigated, path)
	n.current = path
	n.mu.Unlock()
	select {
	case n.notify <- path:
	default:
	}
}

func (n *RecordingNavigator) Redirect(target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects = append(n.redirects, target)
}

func (n *RecordingNavigator) Navigations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.navigated...)
}

func (n *RecordingNavigator) Redirects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.redirects...)
}

// Navigated delivers every in-portal navigation as it happens.
func (n *RecordingNavigator) Navigated() <-chan string {
	return n.notify
}
