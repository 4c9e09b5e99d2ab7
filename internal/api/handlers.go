package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/checksum"
	"github.com/starford/tasklet/internal/docstore"
	"github.com/starford/tasklet/internal/document"
	"github.com/starford/tasklet/internal/syncengine"
)

// Syncer is the sync engine surface the API reads and controls.
type Syncer interface {
	Status() syncengine.Status
	Handle() (capability.Handle, bool)
	LastError() error
	Forget(ctx context.Context)
}

// Handler holds API route handlers.
type Handler struct {
	store *docstore.Store
	sync  Syncer
}

// NewHandler creates a new Handler.
func NewHandler(store *docstore.Store, sync Syncer) *Handler {
	return &Handler{store: store, sync: sync}
}

func (h *Handler) status() StatusResponse {
	s := h.sync.Status()
	resp := StatusResponse{Status: s.String(), Durable: s == syncengine.Ready}
	if hd, ok := h.sync.Handle(); ok {
		resp.Kind = string(hd.Kind)
		resp.Target = hd.Name()
	}
	if err := h.sync.LastError(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// GetStatus handles GET /api/status.
//
//	@Summary		Current sync status
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

// RequestAccess handles POST /api/access.
//
//	@Summary		Bind a data file
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AccessRequest	true	"Location to bind"
//	@Success		200		{object}	StatusResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/access [post]
func (h *Handler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	var req AccessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.store.RequestAccess(r.Context(), syncengine.StaticPicker(req.Handle())); err != nil {
		writeError(w, "request access", err)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// ForgetAccess handles DELETE /api/access.
//
//	@Summary		Forget the bound data file
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/access [delete]
func (h *Handler) ForgetAccess(w http.ResponseWriter, r *http.Request) {
	h.sync.Forget(r.Context())
	writeJSON(w, http.StatusOK, h.status())
}

// GetDocument handles GET /api/document.
//
//	@Summary		Whole document with checksum
//	@Tags			document
//	@Produce		json
//	@Param			If-None-Match	header	string	false	"Checksum from a previous response"
//	@Success		200	{object}	DocumentResponse
//	@Success		304	"Not modified"
//	@Security		BearerAuth
//	@Router			/document [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc := h.store.Snapshot()
	data, err := document.Marshal(doc)
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	sum := checksum.Sum(data)
	etag := `"` + sum + `"`
	if strings.Trim(r.Header.Get("If-None-Match"), `"`) == sum {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	writeJSON(w, http.StatusOK, DocumentResponse{Document: doc, Checksum: sum, Durable: h.store.Durable()})
}

// Export handles GET /api/export.
//
//	@Summary		Download the document as a JSON file
//	@Tags			document
//	@Produce		json
//	@Success		200	{file}	file
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, _ *http.Request) {
	text, err := h.store.ExportSnapshot()
	if err != nil {
		writeError(w, "export", err)
		return
	}
	name := fmt.Sprintf("tasklet-export-%s.json", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

// Import handles POST /api/import.
//
//	@Summary		Replace the document with an exported snapshot
//	@Tags			document
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	ImportResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	doc, err := h.store.ImportSnapshot(string(body))
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Items: len(doc.Items), Durable: h.store.Durable()})
}

// ListItems handles GET /api/items.
//
//	@Summary		List items, optionally by section and search term
//	@Tags			items
//	@Produce		json
//	@Param			section	query		string	false	"Section"	Enums(inProgress, done, longterm, trash)
//	@Param			q		query		string	false	"Case-insensitive text filter"
//	@Success		200		{object}	ItemListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items [get]
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doc := h.store.Snapshot()

	var items []document.Item
	if s := q.Get("section"); s != "" {
		section := document.Section(s)
		if !section.Valid() {
			writeJSON(w, http.StatusBadRequest, errorBody("unknown section"))
			return
		}
		items = doc.BySection(section)
	} else {
		for _, section := range document.MainSections {
			items = append(items, doc.BySection(section)...)
		}
	}
	items = document.Search(items, q.Get("q"))
	if items == nil {
		items = []document.Item{}
	}
	writeJSON(w, http.StatusOK, ItemListResponse{Items: items, Total: len(items), Durable: h.store.Durable()})
}

// CreateItem handles POST /api/items.
//
//	@Summary		Create an item
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateItemRequest	true	"Item to create"
//	@Success		201		{object}	ItemResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items [post]
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := h.store.AddItem(req.Text, req.Longterm)
	if err != nil {
		writeError(w, "create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, ItemResponse{Item: item, Durable: h.store.Durable()})
}

// EditItem handles PATCH /api/items/{id}.
//
//	@Summary		Edit an item's text
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Item ID"
//	@Param			body	body		EditItemRequest	true	"New text"
//	@Success		200		{object}	ItemResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [patch]
func (h *Handler) EditItem(w http.ResponseWriter, r *http.Request) {
	var req EditItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.itemResult(w, "edit item")(h.store.EditItem(chi.URLParam(r, "id"), req.Text))
}

// ToggleItem handles POST /api/items/{id}/toggle.
//
//	@Summary		Toggle completion
//	@Tags			items
//	@Produce		json
//	@Param			id	path		string	true	"Item ID"
//	@Success		200	{object}	ItemResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id}/toggle [post]
func (h *Handler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	h.itemResult(w, "toggle item")(h.store.ToggleItem(chi.URLParam(r, "id")))
}

// TrashItem handles POST /api/items/{id}/trash.
//
//	@Summary		Move an item to the trash
//	@Tags			items
//	@Produce		json
//	@Param			id	path		string	true	"Item ID"
//	@Success		200	{object}	ItemResponse
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id}/trash [post]
func (h *Handler) TrashItem(w http.ResponseWriter, r *http.Request) {
	h.itemResult(w, "trash item")(h.store.TrashItem(chi.URLParam(r, "id")))
}

// RestoreItem handles POST /api/items/{id}/restore.
//
//	@Summary		Restore an item from the trash
//	@Tags			items
//	@Produce		json
//	@Param			id	path		string	true	"Item ID"
//	@Success		200	{object}	ItemResponse
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id}/restore [post]
func (h *Handler) RestoreItem(w http.ResponseWriter, r *http.Request) {
	h.itemResult(w, "restore item")(h.store.RestoreItem(chi.URLParam(r, "id")))
}

// DeleteItem handles DELETE /api/items/{id}.
//
//	@Summary		Delete an item permanently
//	@Tags			items
//	@Param			id	path	string	true	"Item ID"
//	@Success		204	"Item deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [delete]
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.store.PurgeItem(chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Undo handles POST /api/undo.
//
//	@Summary		Undo the last move to trash
//	@Tags			items
//	@Produce		json
//	@Success		200	{object}	UndoResponse
//	@Security		BearerAuth
//	@Router			/undo [post]
func (h *Handler) Undo(w http.ResponseWriter, _ *http.Request) {
	undone := h.store.UndoTrash()
	writeJSON(w, http.StatusOK, UndoResponse{Undone: undone, Durable: h.store.Durable()})
}

// EmptyTrash handles DELETE /api/trash.
//
//	@Summary		Purge every trashed item
//	@Tags			items
//	@Produce		json
//	@Success		200	{object}	EmptyTrashResponse
//	@Security		BearerAuth
//	@Router			/trash [delete]
func (h *Handler) EmptyTrash(w http.ResponseWriter, _ *http.Request) {
	n := h.store.EmptyTrash()
	writeJSON(w, http.StatusOK, EmptyTrashResponse{Removed: n, Durable: h.store.Durable()})
}

func (h *Handler) itemResult(w http.ResponseWriter, op string) func(document.Item, error) {
	return func(item document.Item, err error) {
		if err != nil {
			writeError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, ItemResponse{Item: item, Durable: h.store.Durable()})
	}
}
