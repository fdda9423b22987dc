package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/qnadeck/internal/errors"
	"github.com/hpungsan/qnadeck/internal/gateway"
	"github.com/hpungsan/qnadeck/internal/qna"
)

// call is one gateway invocation.
type call struct {
	Op     string
	ID     int64
	Filter qna.Filter
	Body   any
	Done   bool
	Name   string
}

type fakeGateway struct {
	mu         sync.Mutex
	calls      []call
	qnas       []qna.Qna
	categories []qna.Category
	listErr    error
	export     []byte
	imported   string
}

func (f *fakeGateway) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeGateway) all() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeGateway) ops(op string) []call {
	var out []call
	for _, c := range f.all() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeGateway) ListQnas(_ context.Context, filter qna.Filter) ([]qna.Qna, error) {
	f.record(call{Op: "ListQnas", Filter: filter})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]qna.Qna(nil), f.qnas...), nil
}

func (f *fakeGateway) CreateQna(_ context.Context, in qna.QnaInput) (*qna.Qna, error) {
	f.record(call{Op: "CreateQna", Body: in})
	return nil, nil
}

func (f *fakeGateway) UpdateQna(_ context.Context, id int64, body any) (*qna.Qna, error) {
	f.record(call{Op: "UpdateQna", ID: id, Body: body})
	return nil, nil
}

func (f *fakeGateway) DeleteQna(_ context.Context, id int64) error {
	f.record(call{Op: "DeleteQna", ID: id})
	return nil
}

func (f *fakeGateway) ToggleBookmark(_ context.Context, id int64) error {
	f.record(call{Op: "ToggleBookmark", ID: id})
	return nil
}

func (f *fakeGateway) MarkDone(_ context.Context, id int64, done bool) error {
	f.record(call{Op: "MarkDone", ID: id, Done: done})
	return nil
}

func (f *fakeGateway) ListCategories(_ context.Context) ([]qna.Category, error) {
	f.record(call{Op: "ListCategories"})
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]qna.Category(nil), f.categories...), nil
}

func (f *fakeGateway) CreateCategory(_ context.Context, name string) (*qna.Category, error) {
	f.record(call{Op: "CreateCategory", Name: name})
	return nil, nil
}

func (f *fakeGateway) UpdateCategory(_ context.Context, id int64, name string) (*qna.Category, error) {
	f.record(call{Op: "UpdateCategory", ID: id, Name: name})
	return nil, nil
}

func (f *fakeGateway) DeleteCategory(_ context.Context, id int64) error {
	f.record(call{Op: "DeleteCategory", ID: id})
	return nil
}

func (f *fakeGateway) Export(_ context.Context, format gateway.Format) ([]byte, error) {
	f.record(call{Op: "Export", Name: string(format)})
	return f.export, nil
}

func (f *fakeGateway) Import(_ context.Context, format gateway.Format, filename string, r io.Reader) (map[string]any, error) {
	f.record(call{Op: "Import", Name: filename})
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.imported = string(b)
	f.mu.Unlock()
	return map[string]any{"format": string(format)}, nil
}

func int64Ptr(i int64) *int64 { return &i }
func boolPtr(b bool) *bool    { return &b }

func newTestShell(gw *fakeGateway, confirm bool) *Shell {
	return New(gw, Options{
		Debounce:  30 * time.Millisecond,
		Confirmer: ConfirmFunc(func(string) bool { return confirm }),
		Logger:    log.New(io.Discard, "", 0),
	})
}

func TestLoad_ReplacesCollections(t *testing.T) {
	gw := &fakeGateway{
		qnas:       []qna.Qna{{ID: 1, Question: "q"}},
		categories: []qna.Category{{ID: 3, Name: "Go"}},
	}
	s := newTestShell(gw, true)

	var seen, loaded []ViewState
	s.opts.OnChange = func(v ViewState) { seen = append(seen, v) }
	s.opts.OnLoad = func(v ViewState) { loaded = append(loaded, v) }

	require.NoError(t, s.Load(context.Background()))
	st := s.State()
	require.Len(t, st.Qnas, 1)
	require.Equal(t, "Go", st.CategoryName(int64Ptr(3)))
	require.Len(t, seen, 1)
	require.Len(t, loaded, 1)

	s.Dispatch(ToggleDarkMode{})
	require.Len(t, seen, 2)
	require.Len(t, loaded, 1)
	require.Len(t, gw.ops("ListQnas"), 1)
	require.Len(t, gw.ops("ListCategories"), 1)
}

func TestLoad_FailureKeepsState(t *testing.T) {
	gw := &fakeGateway{qnas: []qna.Qna{{ID: 1}}}
	var logs bytes.Buffer
	s := New(gw, Options{Logger: log.New(&logs, "", 0)})
	require.NoError(t, s.Load(context.Background()))

	gw.mu.Lock()
	gw.listErr = errors.NewTransport("GET", "http://x/qnas/", fmt.Errorf("connection refused"))
	gw.mu.Unlock()

	err := s.Load(context.Background())
	require.True(t, errors.Is(err, errors.ErrTransport))
	require.Len(t, s.State().Qnas, 1)
	require.Contains(t, logs.String(), "reload failed")
}

func TestDebounce_OnlyFinalFilterLoads(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestShell(gw, true)
	defer s.Close()

	s.Start(context.Background())
	s.Dispatch(SetSearch{Term: "g"})
	s.Dispatch(SetSearch{Term: "go"})
	s.Dispatch(SetDoneFilter{Done: boolPtr(false)})
	s.Dispatch(SetSearch{Term: "gor"})

	require.Eventually(t, func() bool { return len(gw.ops("ListQnas")) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	lists := gw.ops("ListQnas")
	require.Len(t, lists, 1)
	require.Equal(t, "gor", lists[0].Filter.Search)
	require.Equal(t, "is_done=false&search=gor", lists[0].Filter.Query().Encode())
}

func TestDebounce_NonFilterActionsDoNotLoad(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestShell(gw, true)
	defer s.Close()

	s.Dispatch(ToggleDarkMode{})
	s.Dispatch(ToggleExpand{ID: 4})
	s.Dispatch(OpenCreateQna{})
	s.Dispatch(SetSearch{Term: ""})

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, gw.all())
}

func TestClose_StopsPendingLoad(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestShell(gw, true)

	s.Start(context.Background())
	s.Close()
	s.Dispatch(SetSearch{Term: "x"})

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, gw.all())
}

func TestSaveQna_CreateVsUpdate(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestShell(gw, true)

	s.Dispatch(OpenCreateQna{})
	s.Dispatch(EditQnaDraft{Fields: qna.QnaInput{Question: "new?", CategoryID: int64Ptr(2)}})
	require.NoError(t, s.SaveQna(context.Background()))

	creates := gw.ops("CreateQna")
	require.Len(t, creates, 1)
	require.Equal(t, qna.QnaInput{Question: "new?", CategoryID: int64Ptr(2)}, creates[0].Body)
	require.Nil(t, s.State().QnaModal)
	require.Len(t, gw.ops("ListQnas"), 1, "save reloads")

	notes := "keep me local"
	s.Dispatch(OpenEditQna{Qna: qna.Qna{ID: 7, Question: "old", Enrichment: qna.Enrichment{Notes: &notes}}})
	s.Dispatch(EditQnaDraft{Fields: qna.QnaInput{Question: "edited", IsDone: true}})
	require.NoError(t, s.SaveQna(context.Background()))

	updates := gw.ops("UpdateQna")
	require.Len(t, updates, 1)
	require.Equal(t, int64(7), updates[0].ID)
	require.Equal(t, qna.QnaInput{Question: "edited", IsDone: true}, updates[0].Body)
}

func TestSaveQna_NoDraft(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestShell(gw, true)
	require.NoError(t, s.SaveQna(context.Background()))
	require.Empty(t, gw.all())
}

func TestDeleteQna_Declined(t *testing.T) {
	gw := &fakeGateway{}
	var prompts []string
	s := New(gw, Options{Confirmer: ConfirmFunc(func(p string) bool {
		prompts = append(prompts, p)
		return false
	})})

	err := s.DeleteQna(context.Background(), 5)
	require.True(t, errors.Is(err, errors.ErrDeclined))
	require.Equal(t, []string{PromptDeleteQna}, prompts)
	require.Empty(t, gw.all())
}

func TestDeleteCategory_DeclinedLeavesEverything(t *testing.T) {
	gw := &fakeGateway{
		qnas:       []qna.Qna{{ID: 1, CategoryID: int64Ptr(3)}},
		categories: []qna.Category{{ID: 3, Name: "Go"}},
	}
	s := newTestShell(gw, false)
	require.NoError(t, s.Load(context.Background()))
	before := s.State()
	callsBefore := len(gw.all())

	err := s.DeleteCategory(context.Background(), 3)
	require.True(t, errors.Is(err, errors.ErrDeclined))
	require.Len(t, gw.all(), callsBefore)
	require.Equal(t, before.Categories, s.State().Categories)
	require.Equal(t, before.Qnas, s.State().Qnas)
}

func TestDeleteCategory_Accepted(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestShell(gw, true)

	require.NoError(t, s.DeleteCategory(context.Background(), 3))

	got := gw.all()
	require.Len(t, gw.ops("DeleteCategory"), 1)
	require.Equal(t, call{Op: "DeleteCategory", ID: 3}, got[0])
	require.Len(t, gw.ops("ListQnas"), 1)
	require.Len(t, gw.ops("ListCategories"), 1)
}

func TestToggleBookmarkAndDone(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestShell(gw, true)

	require.NoError(t, s.ToggleBookmark(context.Background(), 4))
	require.NoError(t, s.ToggleDone(context.Background(), 4, true))
	require.NoError(t, s.ToggleDone(context.Background(), 5, false))

	require.Equal(t, []call{{Op: "ToggleBookmark", ID: 4}}, gw.ops("ToggleBookmark"))
	marks := gw.ops("MarkDone")
	require.Len(t, marks, 2)
	require.False(t, marks[0].Done)
	require.True(t, marks[1].Done)
	require.Len(t, gw.ops("ListQnas"), 3)
}

func TestUpdateCard_SendsMergedQna(t *testing.T) {
	spent := 10
	gw := &fakeGateway{qnas: []qna.Qna{{ID: 9, Question: "q", Bookmark: true, Enrichment: qna.Enrichment{TimeSpent: &spent}}}}
	s := newTestShell(gw, true)
	require.NoError(t, s.Load(context.Background()))

	score := 80
	require.NoError(t, s.UpdateCard(context.Background(), 9, qna.CardUpdate{PerformanceScore: &score}))

	updates := gw.ops("UpdateQna")
	require.Len(t, updates, 1)
	sent, ok := updates[0].Body.(qna.Qna)
	require.True(t, ok)
	require.Equal(t, "q", sent.Question)
	require.True(t, sent.Bookmark)
	require.Equal(t, 80, *sent.PerformanceScore)
	require.Equal(t, 10, *sent.TimeSpent)

	err := s.UpdateCard(context.Background(), 404, qna.CardUpdate{PerformanceScore: &score})
	require.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, s.UpdateCard(context.Background(), 9, qna.CardUpdate{}))
	require.Len(t, gw.ops("UpdateQna"), 1)
}

func TestSaveCategory(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestShell(gw, true)

	require.NoError(t, s.SaveCategory(context.Background()))
	require.Empty(t, gw.all(), "empty name is ignored")

	s.Dispatch(SetCategoryName{Name: "SQL"})
	require.NoError(t, s.SaveCategory(context.Background()))
	require.Equal(t, "SQL", gw.ops("CreateCategory")[0].Name)
	require.Equal(t, "", s.State().CategoryModal.Name)

	s.Dispatch(EditCategory{Category: qna.Category{ID: 2, Name: "SQL"}})
	s.Dispatch(SetCategoryName{Name: "Databases"})
	require.NoError(t, s.SaveCategory(context.Background()))

	renames := gw.ops("UpdateCategory")
	require.Len(t, renames, 1)
	require.Equal(t, int64(2), renames[0].ID)
	require.Equal(t, "Databases", renames[0].Name)
	require.Nil(t, s.State().CategoryModal.Editing)
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	gw := &fakeGateway{export: []byte("id,question\n")}
	s := newTestShell(gw, true)

	path, err := s.Export(context.Background(), gateway.FormatCSV, dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "qna_backup.csv"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "id,question\n", string(data))

	in := filepath.Join(dir, "upload.json")
	require.NoError(t, os.WriteFile(in, []byte(`[{"question":"x"}]`), 0o644))
	out, err := s.Import(context.Background(), gateway.FormatJSON, in)
	require.NoError(t, err)
	require.Equal(t, "json", out["format"])
	require.Equal(t, `[{"question":"x"}]`, gw.imported)
	require.Equal(t, "upload.json", gw.ops("Import")[0].Name)
	require.Empty(t, gw.ops("ListQnas"))

	_, err = s.Import(context.Background(), gateway.FormatJSON, filepath.Join(dir, "missing.json"))
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestCardCallbacks(t *testing.T) {
	gw := &fakeGateway{qnas: []qna.Qna{{ID: 6, IsDone: true}}}
	s := newTestShell(gw, false)
	require.NoError(t, s.Load(context.Background()))

	cb := s.CardCallbacks(context.Background(), qna.Qna{ID: 6, IsDone: true})
	cb.OnToggleExpand()
	require.True(t, s.State().IsExpanded(6))
	cb.OnEdit()
	require.Equal(t, int64(6), s.State().QnaModal.ID)

	cb.OnToggleDone()
	require.False(t, gw.ops("MarkDone")[0].Done)

	cb.OnDelete()
	require.Empty(t, gw.ops("DeleteQna"), "declined")

	n := "note"
	cb.OnUpdateCard(qna.CardUpdate{Notes: &n})
	require.Len(t, gw.ops("UpdateQna"), 1)
}
