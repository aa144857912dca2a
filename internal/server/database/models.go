package database

import "time"

// Critique is the durable index row for a stored critique. The critique
// content itself lives in the key-value store.
type Critique struct {
	ID                string
	Filename          string
	MimeType          string
	SizeBytes         int64
	ImageKey          string // empty when the image is stored inline
	DeletionTokenHash string
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Stats holds aggregate server statistics.
type Stats struct {
	TotalCritiques  int64
	ActiveCritiques int64
	StorageUsed     int64
}
