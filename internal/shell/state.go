package shell

import (
	"sort"

	"github.com/hpungsan/qnadeck/internal/qna"
)

// CategoryForm is the manage-categories dialog.
type CategoryForm struct {
	Open    bool
	Editing *qna.Category // nil when the name field adds a new category
	Name    string
}

// ViewState is everything the shell shows. Treat it as a value: Reduce
// returns a new state and never mutates the one it was given.
type ViewState struct {
	Qnas       []qna.Qna
	Categories []qna.Category
	Filter     qna.Filter
	DarkMode   bool

	// Expanded holds the ids of expanded cards. Ids are stable across
	// reloads, so expansion survives them.
	Expanded map[int64]bool

	// QnaModal is the question being created or edited, nil when closed.
	QnaModal *qna.Qna

	CategoryModal CategoryForm
}

// IsExpanded reports whether card id is expanded.
func (s ViewState) IsExpanded(id int64) bool {
	return s.Expanded[id]
}

// ExpandedIDs returns the expanded ids in ascending order.
func (s ViewState) ExpandedIDs() []int64 {
	ids := make([]int64, 0, len(s.Expanded))
	for id := range s.Expanded {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CategoryName resolves a category id against the loaded categories.
func (s ViewState) CategoryName(id *int64) string {
	return qna.CategoryName(s.Categories, id)
}

// Action is one user intent applied by Reduce.
type Action interface {
	apply(s ViewState) ViewState
}

// Reduce applies a to s.
func Reduce(s ViewState, a Action) ViewState {
	if a == nil {
		return s
	}
	return a.apply(s)
}

// FilterChanged reports whether going from prev to next needs a reload.
func FilterChanged(prev, next ViewState) bool {
	return !prev.Filter.Equal(next.Filter)
}

// SetSearch sets the free-text search. An empty term clears it.
type SetSearch struct{ Term string }

func (a SetSearch) apply(s ViewState) ViewState {
	s.Filter.Search = a.Term
	return s
}

// SetCategoryFilter narrows to one category; nil shows all.
type SetCategoryFilter struct{ ID *int64 }

func (a SetCategoryFilter) apply(s ViewState) ViewState {
	s.Filter.CategoryID = copyInt64(a.ID)
	return s
}

// SetDoneFilter narrows by done flag; nil shows both.
type SetDoneFilter struct{ Done *bool }

func (a SetDoneFilter) apply(s ViewState) ViewState {
	s.Filter.Done = copyBool(a.Done)
	return s
}

// SetBookmarkFilter narrows by bookmark flag; nil shows both.
type SetBookmarkFilter struct{ Bookmarked *bool }

func (a SetBookmarkFilter) apply(s ViewState) ViewState {
	s.Filter.Bookmarked = copyBool(a.Bookmarked)
	return s
}

// ClearFilters drops every filter and the search term.
type ClearFilters struct{}

func (ClearFilters) apply(s ViewState) ViewState {
	s.Filter = qna.Filter{}
	return s
}

// ToggleDarkMode flips the theme.
type ToggleDarkMode struct{}

func (ToggleDarkMode) apply(s ViewState) ViewState {
	s.DarkMode = !s.DarkMode
	return s
}

// ToggleExpand adds or removes ID from the expanded set.
type ToggleExpand struct{ ID int64 }

func (a ToggleExpand) apply(s ViewState) ViewState {
	next := make(map[int64]bool, len(s.Expanded)+1)
	for id := range s.Expanded {
		next[id] = true
	}
	if next[a.ID] {
		delete(next, a.ID)
	} else {
		next[a.ID] = true
	}
	s.Expanded = next
	return s
}

// OpenCreateQna opens the question dialog on a blank, unsaved question.
type OpenCreateQna struct{}

func (OpenCreateQna) apply(s ViewState) ViewState {
	s.QnaModal = &qna.Qna{}
	return s
}

// OpenEditQna opens the question dialog on a copy of Qna.
type OpenEditQna struct{ Qna qna.Qna }

func (a OpenEditQna) apply(s ViewState) ViewState {
	draft := a.Qna
	draft.CategoryID = copyInt64(a.Qna.CategoryID)
	s.QnaModal = &draft
	return s
}

// EditQnaDraft replaces the five form fields of the open draft.
type EditQnaDraft struct{ Fields qna.QnaInput }

func (a EditQnaDraft) apply(s ViewState) ViewState {
	if s.QnaModal == nil {
		return s
	}
	draft := *s.QnaModal
	draft.Question = a.Fields.Question
	draft.Answer = a.Fields.Answer
	draft.IsDone = a.Fields.IsDone
	draft.Bookmark = a.Fields.Bookmark
	draft.CategoryID = copyInt64(a.Fields.CategoryID)
	s.QnaModal = &draft
	return s
}

// CloseQnaModal discards the draft.
type CloseQnaModal struct{}

func (CloseQnaModal) apply(s ViewState) ViewState {
	s.QnaModal = nil
	return s
}

// OpenCategoryModal shows the manage-categories dialog.
type OpenCategoryModal struct{}

func (OpenCategoryModal) apply(s ViewState) ViewState {
	s.CategoryModal.Open = true
	return s
}

// CloseCategoryModal hides the dialog. The form keeps its contents.
type CloseCategoryModal struct{}

func (CloseCategoryModal) apply(s ViewState) ViewState {
	s.CategoryModal.Open = false
	return s
}

// EditCategory puts Category in the form for renaming.
type EditCategory struct{ Category qna.Category }

func (a EditCategory) apply(s ViewState) ViewState {
	c := a.Category
	s.CategoryModal.Editing = &c
	s.CategoryModal.Name = c.Name
	return s
}

// SetCategoryName updates the name field.
type SetCategoryName struct{ Name string }

func (a SetCategoryName) apply(s ViewState) ViewState {
	s.CategoryModal.Name = a.Name
	return s
}

// ResetCategoryForm clears the name field and leaves rename mode.
type ResetCategoryForm struct{}

func (ResetCategoryForm) apply(s ViewState) ViewState {
	s.CategoryModal.Editing = nil
	s.CategoryModal.Name = ""
	return s
}

// Loaded replaces both collections with a fresh response.
type Loaded struct {
	Qnas       []qna.Qna
	Categories []qna.Category
}

func (a Loaded) apply(s ViewState) ViewState {
	s.Qnas = a.Qnas
	s.Categories = a.Categories
	return s
}

func copyInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
