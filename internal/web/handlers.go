package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/qnadeck/internal/card"
	"github.com/hpungsan/qnadeck/internal/config"
	"github.com/hpungsan/qnadeck/internal/errors"
	"github.com/hpungsan/qnadeck/internal/gateway"
	"github.com/hpungsan/qnadeck/internal/qna"
	"github.com/hpungsan/qnadeck/internal/render"
	"github.com/hpungsan/qnadeck/internal/shell"
)

// maxImportSize bounds an uploaded import file.
const maxImportSize = 10 << 20

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	gw       shell.Gateway
	cfg      *config.Config
	renderer *Renderer
	md       *render.Renderer
	now      func() time.Time
}

// HandleList handles GET /qnas with optional category, done, bookmark and
// search filters from the query string.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, err := filterFromQuery(query.Get("category"), query.Get("done"), query.Get("bookmark"), query.Get("search"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	var (
		items      []qna.Qna
		categories []qna.Category
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		items, err = h.gw.ListQnas(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = h.gw.ListCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.renderError(w, r, err)
		return
	}

	now := h.now()
	views := make([]card.CardView, 0, len(items))
	for _, q := range items {
		c := card.New(q, card.Callbacks{}, card.Options{
			PreviewChars: h.cfg.PreviewChars,
			CategoryName: qna.CategoryName(categories, q.CategoryID),
		})
		views = append(views, c.View(false, filter.Search, now))
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"items": views, "count": len(views)})
		return
	}

	cards := make([]CardItem, 0, len(views))
	for _, v := range views {
		cards = append(cards, h.cardItem(v))
	}
	h.renderer.renderPage(w, "list", ListPageData{
		PageData:   h.pageData("Questions"),
		Cards:      cards,
		Categories: categories,
		Search:     filter.Search,
		CategoryID: query.Get("category"),
		Done:       query.Get("done"),
		Bookmark:   query.Get("bookmark"),
	})
}

// HandleDetail handles GET /qnas/{id}: the full answer, related cards and
// study analytics.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	c, err := h.loadCard(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	c.ToggleRelated()
	c.ToggleAnalytics()
	v := c.View(true, "", h.now())

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, v)
		return
	}
	h.renderer.renderPage(w, "detail", DetailPageData{
		PageData: h.pageData(c.Qna().Question),
		CardItem: h.cardItem(v),
	})
}

// HandleMarkdown handles GET /qnas/{id}/markdown as a file download.
func (h *Handlers) HandleMarkdown(w http.ResponseWriter, r *http.Request) {
	c, err := h.loadCard(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	filename, content, err := c.Export(card.ExportMarkdown)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write([]byte(content))
}

// HandleBookmark handles POST /qnas/{id}/bookmark. The backend flips the flag.
func (h *Handlers) HandleBookmark(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.gw.ToggleBookmark(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.finish(w, r, map[string]any{"id": id, "toggled": true})
}

// HandleDone handles POST /qnas/{id}/done by sending the negation of the
// stored value.
func (h *Handlers) HandleDone(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	q, err := h.find(r, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.gw.MarkDone(r.Context(), id, !q.IsDone); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.finish(w, r, map[string]any{"id": id, "is_done": !q.IsDone})
}

// HandleDelete handles DELETE /qnas/{id}. The page script confirms first.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.gw.DeleteQna(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// HandleExport handles GET /export/{format} as a qna_backup.* download.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	format, err := gateway.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	data, err := h.gw.Export(r.Context(), format)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", gateway.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", gateway.ExportFilename(format)))
	_, _ = w.Write(data)
}

// HandleImport handles POST /import/{format}, passing the multipart "file"
// field through to the backend unchanged.
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	format, err := gateway.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.renderError(w, r, errors.NewInvalidRequest(fmt.Sprintf("file is required: %v", err)))
		return
	}
	defer file.Close()

	result, err := h.gw.Import(r.Context(), format, header.Filename, file)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.finish(w, r, map[string]any{"imported": true, "format": format, "result": result})
}

// HandleStyles serves the code highlighting stylesheet.
func (h *Handlers) HandleStyles(w http.ResponseWriter, r *http.Request) {
	css, err := h.md.CSS()
	if err != nil {
		h.renderError(w, r, errors.NewInternal(err))
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write([]byte(css))
}

// finish answers a state-changing request: JSON for API clients, otherwise
// a redirect back to the referring page.
func (h *Handlers) finish(w http.ResponseWriter, r *http.Request, data any) {
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, data)
		return
	}
	target := r.Referer()
	if target == "" {
		target = "/qnas"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// loadCard builds the card for the {id} path variable.
func (h *Handlers) loadCard(r *http.Request) (*card.Card, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	items, err := h.gw.ListQnas(r.Context(), qna.Filter{})
	if err != nil {
		return nil, err
	}
	q, ok := qna.Find(items, id)
	if !ok {
		return nil, errors.NewNotFound(fmt.Sprintf("qna %d", id))
	}
	categories, err := h.gw.ListCategories(r.Context())
	if err != nil {
		return nil, err
	}
	return card.New(q, card.Callbacks{}, card.Options{
		PreviewChars: h.cfg.PreviewChars,
		CategoryName: qna.CategoryName(categories, q.CategoryID),
		Related:      items,
	}), nil
}

// find loads one question. The backend has no single-item read.
func (h *Handlers) find(r *http.Request, id int64) (qna.Qna, error) {
	items, err := h.gw.ListQnas(r.Context(), qna.Filter{})
	if err != nil {
		return qna.Qna{}, err
	}
	q, ok := qna.Find(items, id)
	if !ok {
		return qna.Qna{}, errors.NewNotFound(fmt.Sprintf("qna %d", id))
	}
	return q, nil
}

func (h *Handlers) cardItem(v card.CardView) CardItem {
	item := CardItem{View: v}
	if v.Body == card.BodyMarkdown {
		item.Body = h.md.MustRender(v.Text)
	}
	return item
}

func (h *Handlers) pageData(title string) PageData {
	return PageData{Title: title, Version: h.renderer.version, Dark: h.cfg.Dark()}
}

func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	h.renderer.renderError(w, r, h.cfg.Dark(), err)
}

// filterFromQuery builds a list filter from raw query values.
func filterFromQuery(category, done, bookmark, search string) (qna.Filter, error) {
	f := qna.Filter{Search: search}
	if category != "" {
		id, err := strconv.ParseInt(category, 10, 64)
		if err != nil {
			return f, errors.NewInvalidRequest("category must be a numeric id")
		}
		f.CategoryID = &id
	}
	var err error
	if f.Done, err = qna.ParseTriState(done); err != nil {
		return f, errors.NewInvalidRequest("done: " + err.Error())
	}
	if f.Bookmarked, err = qna.ParseTriState(bookmark); err != nil {
		return f, errors.NewInvalidRequest("bookmark: " + err.Error())
	}
	return f, nil
}

// pathID parses the {id} route variable.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequest("invalid id")
	}
	return id, nil
}
