package domain

// NoteDocument is the typed schema of a remote note document. It carries the
// wire field names the merge logic depends on; encoding to and decoding from
// the remote store happens only at the repository boundary, never inside
// business logic.
type NoteDocument struct {
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	CreatedDate  int64    `json:"created_date"`
	ModifiedDate int64    `json:"modified_date"`
	IsFavorite   bool     `json:"is_favorite"`
	IsInTrash    bool     `json:"is_in_trash"`
	IsLocked     bool     `json:"is_locked"`
	ColorID      int      `json:"color_id"`
	CategoryID   string   `json:"category_id,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	OwnerID      string   `json:"owner_id"`

	// DeviceID identifies the client that performed the last write. The
	// change feed uses it to discard echoes of this device's own writes.
	DeviceID string `json:"device_id,omitempty"`
}

// Fields returns the document as named remote fields. This is the single
// encode point for note documents.
func (d *NoteDocument) Fields() map[string]any {
	fields := map[string]any{
		"title":         d.Title,
		"content":       d.Content,
		"created_date":  d.CreatedDate,
		"modified_date": d.ModifiedDate,
		"is_favorite":   d.IsFavorite,
		"is_in_trash":   d.IsInTrash,
		"is_locked":     d.IsLocked,
		"color_id":      d.ColorID,
		"owner_id":      d.OwnerID,
	}
	if d.CategoryID != "" {
		fields["category_id"] = d.CategoryID
	}
	if len(d.Labels) > 0 {
		fields["labels"] = d.Labels
	}
	if d.DeviceID != "" {
		fields["device_id"] = d.DeviceID
	}
	return fields
}

// CategoryDocument is the typed schema of a remote category document.
type CategoryDocument struct {
	Name         string `json:"name"`
	Color        int    `json:"color"`
	CreatedDate  int64  `json:"created_date"`
	ModifiedDate int64  `json:"modified_date"`
	OwnerID      string `json:"owner_id"`
	DeviceID     string `json:"device_id,omitempty"`
}

// Fields returns the document as named remote fields.
func (d *CategoryDocument) Fields() map[string]any {
	fields := map[string]any{
		"name":          d.Name,
		"color":         d.Color,
		"created_date":  d.CreatedDate,
		"modified_date": d.ModifiedDate,
		"owner_id":      d.OwnerID,
	}
	if d.DeviceID != "" {
		fields["device_id"] = d.DeviceID
	}
	return fields
}

// Document converts a local note to its remote representation.
// categoryCloudID is the cloud id of the note's category, already resolved
// by the caller ("" when the note has none or the category is not linked
// yet). Attachments stay local; only their metadata lives in the local row.
func (n *Note) Document(categoryCloudID, deviceID string) *NoteDocument {
	return &NoteDocument{
		Title:        n.Title,
		Content:      n.Body,
		CreatedDate:  n.CreatedAt,
		ModifiedDate: n.ModifiedAt,
		IsFavorite:   n.IsFavorite,
		IsInTrash:    n.IsTrashed,
		IsLocked:     n.IsLocked,
		ColorID:      n.ColorTag,
		CategoryID:   categoryCloudID,
		Labels:       n.LabelRefs,
		OwnerID:      n.OwnerID,
		DeviceID:     deviceID,
	}
}

// Note materializes a local record from a remote document. The result is
// clean (needs_sync false); categoryRef is the local category id already
// resolved by the caller.
func (d *NoteDocument) Note(cloudID string, categoryRef *int64) *Note {
	return &Note{
		CloudID:     cloudID,
		Title:       d.Title,
		Body:        d.Content,
		CreatedAt:   d.CreatedDate,
		ModifiedAt:  d.ModifiedDate,
		IsFavorite:  d.IsFavorite,
		IsTrashed:   d.IsInTrash,
		IsLocked:    d.IsLocked,
		ColorTag:    d.ColorID,
		CategoryRef: categoryRef,
		LabelRefs:   d.Labels,
		NeedsSync:   false,
		OwnerID:     d.OwnerID,
	}
}

// Document converts a local category to its remote representation.
func (c *Category) Document(deviceID string) *CategoryDocument {
	return &CategoryDocument{
		Name:         c.Name,
		Color:        c.Color,
		CreatedDate:  c.CreatedAt,
		ModifiedDate: c.ModifiedAt,
		OwnerID:      c.OwnerID,
		DeviceID:     deviceID,
	}
}

// Category materializes a clean local category from a remote document.
func (d *CategoryDocument) Category(cloudID string) *Category {
	return &Category{
		CloudID:    cloudID,
		Name:       d.Name,
		Color:      d.Color,
		CreatedAt:  d.CreatedDate,
		ModifiedAt: d.ModifiedDate,
		NeedsSync:  false,
		OwnerID:    d.OwnerID,
	}
}
