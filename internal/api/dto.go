package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/document"
)

const maxItemText = 4000

// AccessRequest is the request body for binding a data file.
type AccessRequest struct {
	Kind   capability.Kind `json:"kind" example:"file" validate:"required"`
	Path   string          `json:"path" example:"/home/me/tasklet-data.json" validate:"required"`
	Target string          `json:"target,omitempty" example:"tasklet-data.json"`
}

// Validate checks the request fields.
func (r *AccessRequest) Validate() error {
	return r.Handle().Validate()
}

// Handle converts the request to a capability handle.
func (r *AccessRequest) Handle() capability.Handle {
	return capability.Handle{Kind: r.Kind, Path: r.Path, Target: r.Target}
}

// CreateItemRequest is the request body for creating an item.
type CreateItemRequest struct {
	Text     string `json:"text" example:"Water the plants" validate:"required"`
	Longterm bool   `json:"longterm" example:"false"`
}

// Validate checks the request fields.
func (r *CreateItemRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.Required, validation.RuneLength(1, maxItemText)),
	)
}

// EditItemRequest is the request body for editing an item.
type EditItemRequest struct {
	Text string `json:"text" example:"Water the plants twice" validate:"required"`
}

// Validate checks the request fields.
func (r *EditItemRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.Required, validation.RuneLength(1, maxItemText)),
	)
}

// StatusResponse describes the sync binding.
type StatusResponse struct {
	Status  string `json:"status" example:"ready" validate:"required"`
	Durable bool   `json:"durable" example:"true"`
	Kind    string `json:"kind,omitempty" example:"file"`
	Target  string `json:"target,omitempty" example:"tasklet-data.json"`
	Error   string `json:"error,omitempty"`
}

// ItemResponse wraps a single item.
type ItemResponse struct {
	Item    document.Item `json:"item" validate:"required"`
	Durable bool          `json:"durable"`
}

// ItemListResponse wraps an item listing.
type ItemListResponse struct {
	Items   []document.Item `json:"items" validate:"required"`
	Total   int             `json:"total" example:"3"`
	Durable bool            `json:"durable"`
}

// DocumentResponse wraps the whole document.
type DocumentResponse struct {
	Document document.Document `json:"document" validate:"required"`
	Checksum string            `json:"checksum" validate:"required"`
	Durable  bool              `json:"durable"`
}

// UndoResponse reports whether an undo restored anything.
type UndoResponse struct {
	Undone  bool `json:"undone"`
	Durable bool `json:"durable"`
}

// EmptyTrashResponse reports how many items were purged.
type EmptyTrashResponse struct {
	Removed int  `json:"removed"`
	Durable bool `json:"durable"`
}

// ImportResponse summarizes an import.
type ImportResponse struct {
	Items   int  `json:"items"`
	Durable bool `json:"durable"`
}
