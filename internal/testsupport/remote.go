package testsupport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// Call is one request received by Remote.
type Call struct {
	Method string
	Path   string
	Form   map[string]string
	Body   string
	Header http.Header
}

// Remote is an httptest server impersonating both the Nextcloud WebDAV/OCS
// endpoints and the tracker task API. Every request is recorded.
type Remote struct {
	server *httptest.Server

	mu            sync.Mutex
	calls         []Call
	nextShare     int
	MkcolStatus    int
	MoveStatus     int
	ShareStatus    int
	DeleteStatus   int
	PropfindStatus int
	TrackerStatus  int
	PingStatus     int
	// TrackerStatusFor overrides TrackerStatus for specific task ids.
	TrackerStatusFor map[string]int
}

// NewRemote starts a Remote that answers every call successfully by default.
func NewRemote(t testing.TB) *Remote {
	t.Helper()
	r := &Remote{
		nextShare:        100,
		MkcolStatus:      http.StatusCreated,
		MoveStatus:       http.StatusCreated,
		ShareStatus:      http.StatusOK,
		DeleteStatus:     http.StatusOK,
		PropfindStatus:   http.StatusMultiStatus,
		TrackerStatus:    http.StatusOK,
		PingStatus:       http.StatusOK,
		TrackerStatusFor: map[string]int{},
	}
	r.server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.server.Close)
	return r
}

// URL returns the server base URL.
func (r *Remote) URL() string {
	return r.server.URL
}

// Client returns an HTTP client wired to the server.
func (r *Remote) Client() *http.Client {
	return r.server.Client()
}

// Set mutates the configured statuses under the server lock.
func (r *Remote) Set(fn func(*Remote)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// Calls returns a copy of every recorded request.
func (r *Remote) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo returns recorded requests with the given method.
func (r *Remote) CallsTo(method string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// CreatedFolders returns the folder paths of every MKCOL, relative to the user root.
func (r *Remote) CreatedFolders() []string {
	var out []string
	for _, c := range r.CallsTo("MKCOL") {
		out = append(out, davRelative(c.Path))
	}
	return out
}

// SharedPaths returns the path form field of every share creation.
func (r *Remote) SharedPaths() []string {
	var out []string
	for _, c := range r.Calls() {
		if c.Method == http.MethodPost && strings.HasSuffix(c.Path, "/shares") {
			out = append(out, c.Form["path"])
		}
	}
	return out
}

// RevokedShares returns the ids of every share deletion, in order.
func (r *Remote) RevokedShares() []string {
	var out []string
	for _, c := range r.CallsTo(http.MethodDelete) {
		out = append(out, c.Path[strings.LastIndex(c.Path, "/")+1:])
	}
	return out
}

// TrackerUpdates returns the task ids of every tracker update, in order.
func (r *Remote) TrackerUpdates() []string {
	var out []string
	for _, c := range r.Calls() {
		if strings.HasPrefix(c.Path, "/api/v3/task/") {
			out = append(out, strings.TrimPrefix(c.Path, "/api/v3/task/"))
		}
	}
	return out
}

// LastShareID returns the id handed out by the most recent successful share creation.
func (r *Remote) LastShareID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprint(r.nextShare)
}

func (r *Remote) serve(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	call := Call{Method: req.Method, Path: req.URL.Path, Body: string(body), Header: req.Header.Clone()}
	if strings.HasPrefix(req.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		call.Form = parseForm(string(body))
	}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	status := http.StatusNotFound
	payload := ""
	switch {
	case req.Method == "MKCOL":
		status = r.MkcolStatus
	case req.Method == "MOVE":
		status = r.MoveStatus
	case req.Method == "PROPFIND":
		status = r.PropfindStatus
	case req.Method == http.MethodGet && req.URL.Path == "/api/v3/currentUser":
		status = r.PingStatus
	case req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/shares"):
		status = r.ShareStatus
		if status == http.StatusOK {
			r.nextShare++
			payload = fmt.Sprintf(`<?xml version="1.0"?><ocs><meta><status>ok</status><statuscode>200</statuscode></meta><data><id>%d</id><url>%s/s/share%d</url></data></ocs>`,
				r.nextShare, r.server.URL, r.nextShare)
		}
	case req.Method == http.MethodDelete && strings.Contains(req.URL.Path, "/shares/"):
		status = r.DeleteStatus
	case strings.HasPrefix(req.URL.Path, "/api/v3/task/"):
		status = r.TrackerStatus
		if override, ok := r.TrackerStatusFor[strings.TrimPrefix(req.URL.Path, "/api/v3/task/")]; ok {
			status = override
		}
		if status == http.StatusOK {
			out, _ := json.Marshal(map[string]any{"meta": map[string]int{"status": 200}})
			payload = string(out)
		}
	}
	r.mu.Unlock()

	w.WriteHeader(status)
	if payload != "" {
		_, _ = io.WriteString(w, payload)
	}
}

func parseForm(body string) map[string]string {
	out := map[string]string{}
	values, err := url.ParseQuery(body)
	if err != nil {
		return out
	}
	for key := range values {
		out[key] = values.Get(key)
	}
	return out
}

func davRelative(path string) string {
	const prefix = "/remote.php/dav/files/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.TrimPrefix(path, prefix)
	if i := strings.Index(rest, "/"); i >= 0 {
		return rest[i:]
	}
	return "/"
}
