package sheets

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/sheets/v4"
)

// fakeSpreadsheet 在内存中模拟 Sheets v4 中账本用到的几个接口
type fakeSpreadsheet struct {
	mu    sync.Mutex
	id    string
	order []string
	tabs  map[string][][]any
	calls []string
}

func newFakeSpreadsheet(id string, tabs ...string) *fakeSpreadsheet {
	f := &fakeSpreadsheet{id: id, tabs: make(map[string][][]any)}
	for _, t := range tabs {
		f.addTab(t)
	}
	return f
}

func (f *fakeSpreadsheet) addTab(title string) {
	if _, ok := f.tabs[title]; ok {
		return
	}
	f.order = append(f.order, title)
	f.tabs[title] = nil
}

func (f *fakeSpreadsheet) rows(title string) [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tabs[title]
}

func (f *fakeSpreadsheet) serve(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeSpreadsheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest, ok := strings.CutPrefix(r.URL.Path, "/v4/spreadsheets/"+f.id)
	if !ok {
		http.Error(w, "unknown spreadsheet", http.StatusNotFound)
		return
	}
	f.calls = append(f.calls, r.Method+" "+rest)

	switch {
	case rest == "" && r.Method == http.MethodGet:
		meta := &sheets.Spreadsheet{SpreadsheetId: f.id}
		for _, title := range f.order {
			meta.Sheets = append(meta.Sheets, &sheets.Sheet{Properties: &sheets.SheetProperties{Title: title}})
		}
		writeJSON(w, meta)
	case rest == ":batchUpdate":
		var req sheets.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, q := range req.Requests {
			if q.AddSheet == nil {
				continue
			}
			if _, dup := f.tabs[q.AddSheet.Properties.Title]; dup {
				http.Error(w, "sheet already exists", http.StatusBadRequest)
				return
			}
			f.addTab(q.AddSheet.Properties.Title)
		}
		writeJSON(w, &sheets.BatchUpdateSpreadsheetResponse{SpreadsheetId: f.id})
	case strings.HasPrefix(rest, "/values/"):
		f.values(w, r, strings.TrimPrefix(rest, "/values/"))
	default:
		http.Error(w, "unsupported "+r.Method+" "+rest, http.StatusNotFound)
	}
}

func (f *fakeSpreadsheet) values(w http.ResponseWriter, r *http.Request, rng string) {
	op := ""
	for _, suffix := range []string{":append", ":clear"} {
		if strings.HasSuffix(rng, suffix) {
			op, rng = suffix, strings.TrimSuffix(rng, suffix)
		}
	}
	title, cells, ok := splitA1(rng)
	if !ok {
		http.Error(w, "bad range "+rng, http.StatusBadRequest)
		return
	}
	rows, exists := f.tabs[title]
	if !exists {
		http.Error(w, "Unable to parse range: "+rng, http.StatusBadRequest)
		return
	}
	start := startRow(cells)

	switch {
	case op == ":clear":
		if start < len(rows) {
			f.tabs[title] = rows[:start]
		}
		writeJSON(w, &sheets.ClearValuesResponse{ClearedRange: rng})
	case op == ":append":
		vr, err := decodeValues(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.tabs[title] = append(rows, vr.Values...)
		writeJSON(w, &sheets.AppendValuesResponse{SpreadsheetId: f.id})
	case r.Method == http.MethodPut:
		vr, err := decodeValues(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for len(rows) < start+len(vr.Values) {
			rows = append(rows, nil)
		}
		copy(rows[start:], vr.Values)
		f.tabs[title] = rows
		writeJSON(w, &sheets.UpdateValuesResponse{SpreadsheetId: f.id})
	default:
		out := &sheets.ValueRange{Range: rng, MajorDimension: "ROWS"}
		if start < len(rows) {
			out.Values = rows[start:]
			if cells == "1:1" {
				out.Values = rows[:1]
			}
		}
		writeJSON(w, out)
	}
}

// splitA1 拆分 'Title'!A2:H 形式的区域
func splitA1(rng string) (title, cells string, ok bool) {
	i := strings.LastIndex(rng, "!")
	if i < 0 {
		return "", "", false
	}
	title = rng[:i]
	if strings.HasPrefix(title, "'") && strings.HasSuffix(title, "'") {
		title = strings.ReplaceAll(title[1:len(title)-1], "''", "'")
	}
	return title, rng[i+1:], true
}

// startRow 返回区域起始行的下标（从 0 开始）。A:A 这类整列区域返回 0
func startRow(cells string) int {
	first, _, _ := strings.Cut(cells, ":")
	n, err := strconv.Atoi(strings.TrimLeft(first, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	if err != nil || n < 1 {
		return 0
	}
	return n - 1
}

func decodeValues(r *http.Request) (*sheets.ValueRange, error) {
	var vr sheets.ValueRange
	if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
		return nil, err
	}
	return &vr, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
