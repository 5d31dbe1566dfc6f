package store

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-extract/internal/document"
	"github.com/zombor/invoice-extract/internal/invoice"
)

// Extractor runs the extraction pipeline on a file path
type Extractor interface {
	Run(ctx context.Context, path string) (*invoice.Result, error)
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type clock struct{}

func (clock) Now() time.Time {
	return time.Now()
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaces      = regexp.MustCompile(`\s+`)
)

// Service stores uploaded invoices and the results of extracting them
type Service struct {
	db          DB
	storage     Storage
	extractor   Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
	logger      *slog.Logger
}

// NewService creates a new Service with UUID record IDs
func NewService(db DB, storage Storage, extractor Extractor, logger *slog.Logger) *Service {
	return NewServiceWithDeps(db, storage, extractor, uuidGenerator{}, clock{}, logger)
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, extractor Extractor, idGen IDGenerator, timeSrc TimeSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:          db,
		storage:     storage,
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
		logger:      logger,
	}
}

// sanitizeFilename strips everything but letters, digits, spaces, hyphens
// and underscores from the base name and keeps the lower-cased extension
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(spaces.ReplaceAllString(base, " "))
	if len(base) > 50 {
		base = strings.TrimSpace(base[:50])
	}
	if base == "" {
		base = "invoice"
	}
	if unsafeChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	return base + ext
}

// Process stores an uploaded document and extracts it. A failed extraction
// is still recorded; the record and the extraction error are both returned.
func (s *Service) Process(ctx context.Context, filename string, data []byte) (*Record, error) {
	id := s.idGenerator.Generate()
	name, err := s.storage.Save(id+"_"+sanitizeFilename(filename), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	start := s.timeSource.Now()
	result, runErr := s.extractor.Run(ctx, s.storage.Path(name))

	record := &Record{
		ID:        id,
		Filename:  filename,
		Path:      name,
		Kind:      kindOf(filename),
		Result:    result,
		CreatedAt: start,
		Duration:  s.timeSource.Now().Sub(start),
	}
	if runErr != nil {
		record.setError(runErr)
		record.Path = ""
		if err := s.storage.Delete(name); err != nil {
			s.logger.Warn("failed to delete file", "path", name, "error", err)
		}
	}

	if err := s.db.Save(record); err != nil {
		if record.Path != "" {
			s.storage.Delete(name)
		}
		return nil, fmt.Errorf("saving record: %w", err)
	}
	return record, runErr
}

// Remember records an extraction of a file that stays where it is
func (s *Service) Remember(path string, result *invoice.Result, runErr error, duration time.Duration) (*Record, error) {
	record := &Record{
		ID:        s.idGenerator.Generate(),
		Filename:  filepath.Base(path),
		Kind:      kindOf(path),
		Result:    result,
		CreatedAt: s.timeSource.Now(),
		Duration:  duration,
	}
	record.setError(runErr)
	if err := s.db.Save(record); err != nil {
		return nil, fmt.Errorf("saving record: %w", err)
	}
	return record, nil
}

// Get retrieves a record by ID
func (s *Service) Get(id string) (*Record, error) {
	return s.db.Get(id)
}

// List returns all records, newest first
func (s *Service) List() ([]*Record, error) {
	return s.db.List()
}

// Delete removes a record and its stored file
func (s *Service) Delete(id string) error {
	record, err := s.db.Get(id)
	if err != nil {
		return err
	}

	if record.Path != "" {
		if err := s.storage.Delete(record.Path); err != nil {
			s.logger.Warn("failed to delete file", "id", id, "path", record.Path, "error", err)
		}
	}

	return s.db.Delete(id)
}

// GetFile returns the stored document of a record and its content type
func (s *Service) GetFile(id string) ([]byte, string, error) {
	record, err := s.db.Get(id)
	if err != nil {
		return nil, "", err
	}
	if record.Path == "" {
		return nil, "", fmt.Errorf("%w: no file for %s", ErrNotFound, id)
	}

	data, err := s.storage.Get(record.Path)
	if err != nil {
		return nil, "", err
	}
	return data, contentType(record.Path), nil
}

func kindOf(path string) string {
	doc, _ := document.Classify(path)
	return doc.Kind.String()
}

func contentType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return "application/octet-stream"
}
