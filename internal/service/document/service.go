// Package document stores uploaded files and extracts their text.
package document

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedType is returned for anything but .pdf and .txt uploads.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrExtract means the stored file could not be turned into text.
	ErrExtract = errors.New("text extraction failed")
)

var supportedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
}

// Service persists uploads under server-generated names and extracts text.
type Service struct {
	dir      string
	maxBytes int64
	log      *zap.Logger
}

// NewService creates the upload directory if needed.
func NewService(dir string, maxBytes int64, log *zap.Logger) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Service{dir: dir, maxBytes: maxBytes, log: log}, nil
}

// Extension returns the lower-cased extension of name when it is supported.
func Extension(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !supportedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(name))
	}
	return ext, nil
}

// Ingest writes r to disk and returns the extracted text. The client file
// name only contributes its extension; the stored name is a fresh UUID.
func (s *Service) Ingest(originalName string, r io.Reader) (string, error) {
	ext, err := Extension(originalName)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, uuid.NewString()+ext)
	if err := s.save(path, r); err != nil {
		return "", err
	}

	text, err := Extract(path)
	if err != nil {
		return "", err
	}

	s.log.Info("document ingested",
		zap.String("file", filepath.Base(path)),
		zap.String("original", filepath.Base(originalName)),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

func (s *Service) save(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if s.maxBytes > 0 {
		r = io.LimitReader(r, s.maxBytes)
	}
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Extract returns the full text of a .pdf or .txt file.
func Extract(path string) (string, error) {
	ext, err := Extension(path)
	if err != nil {
		return "", err
	}

	if ext == ".txt" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	}

	return extractPDF(path)
}

func extractPDF(path string) (text string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: parse pdf %s: %v", ErrExtract, filepath.Base(path), r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf %s: %w", ErrExtract, filepath.Base(path), err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: pdf text: %w", ErrExtract, err)
	}
	data, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %w", ErrExtract, err)
	}
	return string(data), nil
}
