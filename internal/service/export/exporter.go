// Package export writes session transcripts to downloadable files.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
)

// Supported formats.
const (
	FormatTXT = "txt"
	FormatPDF = "pdf"
)

// ErrUnsupportedFormat is returned for formats other than txt and pdf.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// TranscriptSource loads the user/assistant turns of a session. It must fail
// for unknown sessions instead of creating them.
type TranscriptSource interface {
	Transcript(ctx context.Context, sessionID string) ([]chat.Message, error)
}

// Artifact describes a written export file.
type Artifact struct {
	Name        string
	Path        string
	ContentType string
}

// Exporter renders transcripts into the export directory.
type Exporter struct {
	dir    string
	source TranscriptSource
	now    func() time.Time
	log    *zap.Logger
}

// NewExporter creates the export directory if needed.
func NewExporter(dir string, source TranscriptSource, log *zap.Logger) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir %s: %w", dir, err)
	}
	return &Exporter{dir: dir, source: source, now: time.Now, log: log}, nil
}

// Dir is the directory artifacts are written to.
func (e *Exporter) Dir() string { return e.dir }

// Export writes the transcript of sessionID as format. Nothing is written
// when the session is unknown.
func (e *Exporter) Export(ctx context.Context, sessionID, format string) (Artifact, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatTXT
	}
	if format == "text" {
		format = FormatTXT
	}
	if format != FormatTXT && format != FormatPDF {
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	messages, err := e.source.Transcript(ctx, sessionID)
	if err != nil {
		return Artifact{}, err
	}

	base := fmt.Sprintf("%s_%s", safeName(sessionID), e.now().Format("20060102_150405"))
	f, name, err := e.create(base, format)
	if err != nil {
		return Artifact{}, err
	}
	artifact := Artifact{Name: name, Path: f.Name()}

	switch format {
	case FormatPDF:
		artifact.ContentType = "application/pdf"
		err = writePDF(f, messages)
	default:
		artifact.ContentType = "text/plain; charset=utf-8"
		_, err = f.WriteString(RenderText(messages))
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(artifact.Path)
		return Artifact{}, fmt.Errorf("write export %s: %w", name, err)
	}

	e.log.Info("transcript exported",
		zap.String("session", sessionID),
		zap.String("file", name),
		zap.Int("messages", len(messages)),
	)
	return artifact, nil
}

// maxNameAttempts bounds the suffixes tried when exports of one session land
// in the same second.
const maxNameAttempts = 100

// create opens a new artifact file exclusively; a taken name gets a "_N"
// suffix so earlier exports are never overwritten.
func (e *Exporter) create(base, ext string) (*os.File, string, error) {
	for i := 1; i <= maxNameAttempts; i++ {
		name := base + "." + ext
		if i > 1 {
			name = fmt.Sprintf("%s_%d.%s", base, i, ext)
		}
		f, err := os.OpenFile(filepath.Join(e.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create export %s: %w", name, err)
		}
	}
	return nil, "", fmt.Errorf("create export %s: too many exports in one second", base)
}

// RenderText formats messages as "Role:\ncontent\n\n" blocks.
func RenderText(messages []chat.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(roleTitle(msg.Role))
		sb.WriteString(":\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func roleTitle(role chat.Role) string {
	r := string(role)
	if r == "" {
		return r
	}
	return strings.ToUpper(r[:1]) + r[1:]
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// safeName keeps a session key usable as a file name component.
func safeName(id string) string {
	name := unsafeChars.ReplaceAllString(id, "_")
	if len(name) > 64 {
		name = name[:64]
	}
	if name == "" {
		name = "session"
	}
	return name
}

var artifactName = regexp.MustCompile(`^[A-Za-z0-9_-]+_\d{8}_\d{6}(_\d+)?\.(txt|pdf)$`)

// Resolve maps a download name back to its path, refusing anything that is
// not an artifact name this package generates.
func (e *Exporter) Resolve(name string) (Artifact, bool) {
	if !artifactName.MatchString(name) {
		return Artifact{}, false
	}
	path := filepath.Join(e.dir, name)
	if _, err := os.Stat(path); err != nil {
		return Artifact{}, false
	}
	contentType := "text/plain; charset=utf-8"
	if strings.HasSuffix(name, ".pdf") {
		contentType = "application/pdf"
	}
	return Artifact{Name: name, Path: path, ContentType: contentType}, true
}
