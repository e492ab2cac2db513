package receipt

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-lens/internal/extraction"
	"github.com/zombor/receipt-lens/internal/ocr"
)

// IDGenerator generates record IDs.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Service runs extractions and manages the review queue.
type Service struct {
	db          DB
	recognizer  ocr.Recognizer
	storage     Storage
	extractor   *extraction.Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with UUID record IDs and the system clock.
// recognizer may be nil, in which case only text and line submissions work.
func NewService(db DB, recognizer ocr.Recognizer, storage Storage, extractor *extraction.Extractor) *Service {
	return NewServiceWithDeps(db, recognizer, storage, extractor, uuidGenerator{}, systemClock{})
}

// NewServiceWithDeps creates a Service with custom ID and time sources for testing.
func NewServiceWithDeps(db DB, recognizer ocr.Recognizer, storage Storage, extractor *extraction.Extractor, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		recognizer:  recognizer,
		storage:     storage,
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	reFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reFilenameSpace = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and shortens phone-generated names.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	ext = reFilenameChars.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if ext != "" {
		ext = "." + ext
	}

	base = reFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(reFilenameSpace.ReplaceAllString(base, " "))
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// Extract runs the engine without storing anything.
func (s *Service) Extract(lines []extraction.RawLine) extraction.ExtractedReceipt {
	result := s.extractor.Extract(lines)
	logExtraction(len(lines), result)
	return result
}

func logExtraction(lines int, result extraction.ExtractedReceipt, attrs ...any) {
	attrs = append(attrs,
		"lines", lines,
		"items", len(result.LineItems),
		"confidence", result.Confidence,
		"warnings", len(result.Warnings),
	)
	slog.Info("Extracted receipt", attrs...)
}

// SubmitLines extracts already recognized lines and queues the result for review.
func (s *Service) SubmitLines(lines []extraction.RawLine) (*Record, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	result := s.extractor.Extract(lines)
	logExtraction(len(lines), result, "id", id)

	record := &Record{
		ID:         id,
		Status:     StatusPending,
		Extraction: result,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.SaveRecord(record); err != nil {
		return nil, fmt.Errorf("saving record to database: %w", err)
	}
	return record, nil
}

// ProcessUpload stores an uploaded receipt file, recognizes its text, extracts
// it and queues the result for review. Plain text uploads skip OCR.
func (s *Service) ProcessUpload(filename string, data []byte, contentType string) (*Record, error) {
	isText := strings.HasPrefix(contentType, "text/plain")
	if !isText && s.recognizer == nil {
		return nil, ErrNoRecognizer
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	var lines []extraction.RawLine
	if isText {
		lines = extraction.SplitLines(string(data))
	} else {
		lines, err = s.recognizer.Recognize(data, contentType)
		if err != nil {
			slog.Error("Failed to recognize receipt",
				"filename", filename,
				"content_type", contentType,
				"file_size", len(data),
				"error", err,
			)
			s.cleanup(savedPath)
			return nil, fmt.Errorf("recognizing receipt: %w", err)
		}
	}

	result := s.extractor.Extract(lines)
	logExtraction(len(lines), result, "id", id, "filename", filename)

	record := &Record{
		ID:          id,
		Status:      StatusPending,
		Extraction:  result,
		Filename:    savedPath,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.SaveRecord(record); err != nil {
		s.cleanup(savedPath)
		return nil, fmt.Errorf("saving record to database: %w", err)
	}
	return record, nil
}

func (s *Service) cleanup(path string) {
	if err := s.storage.Delete(path); err != nil {
		slog.Warn("Failed to delete file", "filename", path, "error", err)
	}
}

// GetRecord retrieves a record by ID.
func (s *Service) GetRecord(id string) (*Record, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return record, nil
}

// ListRecords returns all records, newest first. A non-empty status filters
// the list.
func (s *Service) ListRecords(status Status) ([]*Record, error) {
	records, err := s.db.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	filtered := records[:0]
	for _, r := range records {
		if status == "" || r.Status == status {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	return filtered, nil
}

// DeleteRecord removes a record and its file.
func (s *Service) DeleteRecord(id string) error {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return fmt.Errorf("getting record for deletion: %w", err)
	}

	if record.Filename != "" {
		if err := s.storage.Delete(record.Filename); err != nil {
			slog.Warn("Failed to delete file", "filename", record.Filename, "error", err)
		}
	}

	if err := s.db.DeleteRecord(id); err != nil {
		return fmt.Errorf("deleting record from database: %w", err)
	}
	return nil
}

// GetRecordFile returns the uploaded file and its content type.
func (s *Service) GetRecordFile(id string) ([]byte, string, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting record: %w", err)
	}
	if record.Filename == "" {
		return nil, "", fmt.Errorf("%w: record %s has no file", ErrNotFound, id)
	}

	data, err := s.storage.Get(record.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting record file: %w", err)
	}
	return data, record.ContentType, nil
}

// ReviewInput carries reviewer overrides. Nil fields keep the extracted value.
type ReviewInput struct {
	MerchantName *string          `json:"merchant_name"`
	Date         *civil.Date      `json:"date"`
	Total        *decimal.Decimal `json:"total"`
	Currency     *string          `json:"currency"`
}

// ApplyReview stores the reviewed values next to the extraction and marks the
// record approved. Reviewing an approved record replaces the earlier review.
func (s *Service) ApplyReview(id string, input ReviewInput) (*Record, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}

	review, err := buildReview(record.Extraction, input)
	if err != nil {
		return nil, err
	}
	now := s.timeSource.Now()
	review.ReviewedAt = now

	record.Review = review
	record.Status = StatusApproved
	record.UpdatedAt = now

	if err := s.db.SaveRecord(record); err != nil {
		return nil, fmt.Errorf("saving record to database: %w", err)
	}
	slog.Info("Approved receipt", "id", id)
	return record, nil
}

func buildReview(extracted extraction.ExtractedReceipt, input ReviewInput) (*Review, error) {
	review := &Review{
		MerchantName: extracted.MerchantName,
		Date:         extracted.Date,
		Total:        extracted.Total,
	}

	if input.MerchantName != nil {
		name := strings.TrimSpace(*input.MerchantName)
		if name == "" {
			return nil, fmt.Errorf("%w: merchant name must not be blank", ErrInvalidReview)
		}
		review.MerchantName = &name
	}

	if input.Date != nil {
		if !input.Date.IsValid() {
			return nil, fmt.Errorf("%w: date %s is not a calendar date", ErrInvalidReview, input.Date)
		}
		date := *input.Date
		review.Date = &date
	}

	switch {
	case input.Total != nil:
		if input.Total.IsNegative() {
			return nil, fmt.Errorf("%w: total must not be negative", ErrInvalidReview)
		}
		total := extraction.Money{Amount: *input.Total}
		if extracted.Total != nil {
			total.Currency = extracted.Total.Currency
		}
		review.Total = &total
	case input.Currency != nil && extracted.Total == nil:
		return nil, fmt.Errorf("%w: currency given without a total", ErrInvalidReview)
	case extracted.Total != nil:
		total := *extracted.Total
		review.Total = &total
	}

	if input.Currency != nil && review.Total != nil {
		review.Total.Currency = strings.ToUpper(strings.TrimSpace(*input.Currency))
	}
	return review, nil
}
