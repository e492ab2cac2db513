package receipt

import (
	"errors"
	"time"

	"cloud.google.com/go/civil"

	"github.com/zombor/receipt-lens/internal/extraction"
)

var (
	// ErrNotFound is returned when no record exists for an ID.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidReview is returned when reviewed values are unusable.
	ErrInvalidReview = errors.New("invalid review")
	// ErrNoRecognizer is returned for image uploads when OCR is not configured.
	ErrNoRecognizer = errors.New("no OCR recognizer configured")
)

// Status is the review state of a record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)

// Record is one extraction waiting for, or past, manual review.
type Record struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	// Extraction is the engine output as produced. It is never modified by
	// a review.
	Extraction extraction.ExtractedReceipt `json:"extraction"`
	Review     *Review                     `json:"review,omitempty"`

	Filename    string    `json:"filename,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Review holds the values a reviewer settled on.
type Review struct {
	MerchantName *string           `json:"merchant_name"`
	Date         *civil.Date       `json:"date"`
	Total        *extraction.Money `json:"total"`
	ReviewedAt   time.Time         `json:"reviewed_at"`
}

// MerchantName returns the reviewed merchant name, falling back to the
// extracted one.
func (r *Record) MerchantName() *string {
	if r.Review != nil {
		return r.Review.MerchantName
	}
	return r.Extraction.MerchantName
}

// Date returns the reviewed date, falling back to the extracted one.
func (r *Record) Date() *civil.Date {
	if r.Review != nil {
		return r.Review.Date
	}
	return r.Extraction.Date
}

// Total returns the reviewed total, falling back to the extracted one.
func (r *Record) Total() *extraction.Money {
	if r.Review != nil {
		return r.Review.Total
	}
	return r.Extraction.Total
}
