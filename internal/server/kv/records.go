package kv

import "time"

// CritiqueRecord is the stored result of one successful critique. Records
// are written once and never mutated.
type CritiqueRecord struct {
	ID                string            `json:"id"`
	Filename          string            `json:"filename"`
	MimeType          string            `json:"mimeType,omitempty"`
	UploadedAt        time.Time         `json:"uploadedAt"`
	Technique         string            `json:"technique"`
	Composition       string            `json:"composition"`
	Color             string            `json:"color"`
	Overall           string            `json:"overall,omitempty"`
	ExifData          map[string]string `json:"exifData"`
	ImageData         string            `json:"imageData,omitempty"`
	ImageURL          string            `json:"imageUrl,omitempty"`
	ImageKey          string            `json:"imageKey,omitempty"`
	ExpiresAt         time.Time         `json:"expiresAt"`
	DeletionTokenHash string            `json:"deletionTokenHash,omitempty"`
}

// Public returns a copy safe to hand to clients.
func (r *CritiqueRecord) Public() *CritiqueRecord {
	out := *r
	out.DeletionTokenHash = ""
	out.ImageKey = ""
	return &out
}

// ShareRecord maps a share identifier to a critique.
type ShareRecord struct {
	ID         string    `json:"id"`
	CritiqueID string    `json:"critiqueId"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
