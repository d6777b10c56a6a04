package domain

// Request payloads for the local HTTP surface. Validation tags are
// enforced by the handlers before any service call.

type CreateNoteRequest struct {
	Title       string   `json:"title" validate:"required,max=500"`
	Body        string   `json:"body"`
	ColorTag    int      `json:"color_tag" validate:"gte=0"`
	CategoryRef *int64   `json:"category_ref,omitempty"`
	LabelRefs   []string `json:"label_refs,omitempty"`
	IsFavorite  bool     `json:"is_favorite"`
}

type UpdateNoteRequest struct {
	Title       *string  `json:"title,omitempty" validate:"omitempty,max=500"`
	Body        *string  `json:"body,omitempty"`
	ColorTag    *int     `json:"color_tag,omitempty" validate:"omitempty,gte=0"`
	CategoryRef *int64   `json:"category_ref,omitempty"`
	LabelRefs   []string `json:"label_refs,omitempty"`
	IsFavorite  *bool    `json:"is_favorite,omitempty"`

	// Passcode is required only when the note is locked.
	Passcode string `json:"passcode,omitempty"`
}

type LockNoteRequest struct {
	Passcode string `json:"passcode" validate:"required,min=4"`
}

type UnlockNoteRequest struct {
	Passcode string `json:"passcode" validate:"required"`
}

type SignInRequest struct {
	Token string `json:"token" validate:"required"`
}

type CreateCategoryRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Color int    `json:"color" validate:"gte=0"`
}

type UpdateCategoryRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Color *int    `json:"color,omitempty" validate:"omitempty,gte=0"`
}
