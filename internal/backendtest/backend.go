// Package backendtest runs an in-memory Q&A backend over httptest for
// tests of the gateway's callers.
package backendtest

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/hpungsan/qnadeck/internal/config"
	"github.com/hpungsan/qnadeck/internal/gateway"
	"github.com/hpungsan/qnadeck/internal/qna"
)

// Request is one request the backend received.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Body     string
}

// Backend is a fake REST backend. It is safe for concurrent use.
type Backend struct {
	Server *httptest.Server

	mu         sync.Mutex
	qnas       map[int64]qna.Qna
	categories map[int64]qna.Category
	nextID     int64
	requests   []Request
	imported   []string
}

// New starts a backend that is closed when t finishes.
func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		qnas:       map[int64]qna.Qna{},
		categories: map[int64]qna.Category{},
		nextID:     1,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /qnas/{$}", b.listQnas)
	mux.HandleFunc("POST /qnas/{$}", b.createQna)
	mux.HandleFunc("PUT /qnas/{id}", b.updateQna)
	mux.HandleFunc("DELETE /qnas/{id}", b.deleteQna)
	mux.HandleFunc("PATCH /qnas/{id}/bookmark", b.toggleBookmark)
	mux.HandleFunc("PATCH /qnas/{id}/mark", b.markDone)
	mux.HandleFunc("GET /categories/{$}", b.listCategories)
	mux.HandleFunc("POST /categories/{$}", b.createCategory)
	mux.HandleFunc("PUT /categories/{id}", b.updateCategory)
	mux.HandleFunc("DELETE /categories/{id}", b.deleteCategory)
	mux.HandleFunc("GET /bulk/export/json", b.exportJSON)
	mux.HandleFunc("GET /bulk/export/csv", b.exportCSV)
	mux.HandleFunc("POST /bulk/import/{format}", b.importFile)

	b.Server = httptest.NewServer(b.recording(mux))
	t.Cleanup(b.Server.Close)
	return b
}

// Config returns a configuration pointing at the backend.
func (b *Backend) Config() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = b.Server.URL
	return cfg
}

// Client returns a gateway client for the backend.
func (b *Backend) Client() *gateway.Client {
	return gateway.New(b.Config(), gateway.WithHTTPClient(b.Server.Client()))
}

// AddCategory stores a category and returns it with its id.
func (b *Backend) AddCategory(name string) qna.Category {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := qna.Category{ID: b.nextID, Name: name}
	b.nextID++
	b.categories[c.ID] = c
	return c
}

// AddQna stores q under a fresh id and returns it.
func (b *Backend) AddQna(q qna.Qna) qna.Qna {
	b.mu.Lock()
	defer b.mu.Unlock()
	q.ID = b.nextID
	b.nextID++
	b.qnas[q.ID] = q
	return q
}

// Qna returns the stored question id.
func (b *Backend) Qna(id int64) (qna.Qna, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.qnas[id]
	return q, ok
}

// Categories returns the stored categories by id.
func (b *Backend) Categories() []qna.Category {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]qna.Category, 0, len(b.categories))
	for _, c := range b.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Requests returns every request received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count returns how many requests matched method and path exactly.
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Imported returns the contents of every uploaded file.
func (b *Backend) Imported() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.imported...)
}

func (b *Backend) recording(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := ""
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			data, _ := io.ReadAll(r.Body)
			body = string(data)
			r.Body = io.NopCloser(strings.NewReader(body))
		}
		b.mu.Lock()
		b.requests = append(b.requests, Request{Method: r.Method, Path: r.URL.Path, RawQuery: r.URL.RawQuery, Body: body})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) listQnas(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := strings.ToLower(q.Get("search"))

	b.mu.Lock()
	out := make([]qna.Qna, 0, len(b.qnas))
	for _, item := range b.sortedQnasLocked() {
		if v := q.Get("category_id"); v != "" && (item.CategoryID == nil || strconv.FormatInt(*item.CategoryID, 10) != v) {
			continue
		}
		if v := q.Get("is_done"); v != "" && strconv.FormatBool(item.IsDone) != v {
			continue
		}
		if v := q.Get("bookmark"); v != "" && strconv.FormatBool(item.Bookmark) != v {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(item.Question+" "+item.Answer), search) {
			continue
		}
		out = append(out, item)
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createQna(w http.ResponseWriter, r *http.Request) {
	var in qna.Qna
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, b.AddQna(in))
}

func (b *Backend) updateQna(w http.ResponseWriter, r *http.Request) {
	id, ok := b.pathID(w, r)
	if !ok {
		return
	}
	var in qna.Qna
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.qnas[id]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Qna not found"})
		return
	}
	in.ID = id
	b.qnas[id] = in
	writeJSON(w, http.StatusOK, in)
}

func (b *Backend) deleteQna(w http.ResponseWriter, r *http.Request) {
	id, ok := b.pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.qnas[id]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Qna not found"})
		return
	}
	delete(b.qnas, id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (b *Backend) toggleBookmark(w http.ResponseWriter, r *http.Request) {
	b.patchQna(w, r, func(q *qna.Qna) { q.Bookmark = !q.Bookmark })
}

func (b *Backend) markDone(w http.ResponseWriter, r *http.Request) {
	done, err := strconv.ParseBool(r.URL.Query().Get("done"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "done must be a boolean"})
		return
	}
	b.patchQna(w, r, func(q *qna.Qna) { q.IsDone = done })
}

func (b *Backend) patchQna(w http.ResponseWriter, r *http.Request, fn func(*qna.Qna)) {
	id, ok := b.pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	q, exists := b.qnas[id]
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Qna not found"})
		return
	}
	fn(&q)
	b.qnas[id] = q
	writeJSON(w, http.StatusOK, q)
}

func (b *Backend) listCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.Categories())
}

func (b *Backend) createCategory(w http.ResponseWriter, r *http.Request) {
	var in qna.Category
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "name is required"})
		return
	}
	writeJSON(w, http.StatusOK, b.AddCategory(in.Name))
}

func (b *Backend) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := b.pathID(w, r)
	if !ok {
		return
	}
	var in qna.Category
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.categories[id]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Category not found"})
		return
	}
	c := qna.Category{ID: id, Name: in.Name}
	b.categories[id] = c
	writeJSON(w, http.StatusOK, c)
}

func (b *Backend) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := b.pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.categories[id]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Category not found"})
		return
	}
	delete(b.categories, id)
	for qid, q := range b.qnas {
		if q.CategoryID != nil && *q.CategoryID == id {
			delete(b.qnas, qid)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (b *Backend) exportJSON(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	qnas := b.sortedQnasLocked()
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"qnas": qnas, "categories": b.Categories()})
}

func (b *Backend) exportCSV(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	qnas := b.sortedQnasLocked()
	b.mu.Unlock()

	var sb strings.Builder
	cw := csv.NewWriter(&sb)
	_ = cw.Write([]string{"id", "question", "answer", "is_done", "bookmark"})
	for _, q := range qnas {
		_ = cw.Write([]string{
			strconv.FormatInt(q.ID, 10), q.Question, q.Answer,
			strconv.FormatBool(q.IsDone), strconv.FormatBool(q.Bookmark),
		})
	}
	cw.Flush()
	writeJSON(w, http.StatusOK, map[string]string{"csv": sb.String()})
}

func (b *Backend) importFile(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "file is required"})
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	b.mu.Lock()
	b.imported = append(b.imported, string(data))
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": r.PathValue("format") + " import successful"})
}

func (b *Backend) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid id"})
		return 0, false
	}
	return id, true
}

func (b *Backend) sortedQnasLocked() []qna.Qna {
	out := make([]qna.Qna, 0, len(b.qnas))
	for _, q := range b.qnas {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
