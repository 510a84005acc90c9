package gmail

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	gmailapi "google.golang.org/api/gmail/v1"
)

// fakeMailbox 模拟 users.messages.list / get，按 perPage 分页
type fakeMailbox struct {
	mu       sync.Mutex
	perPage  int
	messages []*gmailapi.Message
	queries  []string
	gets     []string
}

func (f *fakeMailbox) serve(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeMailbox) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gets)
}

func (f *fakeMailbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest, ok := strings.CutPrefix(r.URL.Path, "/gmail/v1/users/me/messages")
	if !ok || r.Method != http.MethodGet {
		http.Error(w, "unsupported", http.StatusNotFound)
		return
	}
	if rest == "" {
		f.list(w, r)
		return
	}
	id := strings.TrimPrefix(rest, "/")
	for _, m := range f.messages {
		if m.Id != id {
			continue
		}
		f.gets = append(f.gets, id+":"+r.URL.Query().Get("format"))
		out := *m
		if r.URL.Query().Get("format") == "metadata" && m.Payload != nil {
			out.Payload = &gmailapi.MessagePart{Headers: m.Payload.Headers}
		}
		writeJSON(w, &out)
		return
	}
	http.Error(w, "Requested entity was not found.", http.StatusNotFound)
}

func (f *fakeMailbox) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.queries = append(f.queries, q.Get("q"))
	start, _ := strconv.Atoi(q.Get("pageToken"))
	end := min(start+f.perPage, len(f.messages))

	resp := &gmailapi.ListMessagesResponse{ResultSizeEstimate: int64(len(f.messages))}
	for _, m := range f.messages[start:end] {
		resp.Messages = append(resp.Messages, &gmailapi.Message{Id: m.Id, ThreadId: m.ThreadId})
	}
	if end < len(f.messages) {
		resp.NextPageToken = strconv.Itoa(end)
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
