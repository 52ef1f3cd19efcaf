package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github/itish2003/ainotes/models"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// DefaultMaxImportChars bounds the content of an imported note.
const DefaultMaxImportChars = 32000

// SetUnidocLicense registers the metered UniPDF key. PDF imports fail without it.
func SetUnidocLicense(key string) error {
	if key == "" {
		return fmt.Errorf("no UniDoc license key configured")
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("failed to set UniDoc license key: %w", err)
	}
	return nil
}

// IsSupportedFile reports whether the importer can read the file type.
func IsSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf":
		return true
	default:
		return false
	}
}

// ExtractTextFromFile reads a file and returns its text content.
func ExtractTextFromFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return ExtractText(path, f)
}

// ExtractText returns the text of a .txt, .md or .pdf document. The name is
// only used for its extension.
func ExtractText(name string, r io.ReadSeeker) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".txt", ".md":
		content, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		return string(content), nil
	case ".pdf":
		return extractTextFromPDF(r)
	default:
		return "", fmt.Errorf("unsupported file type: %s", ext)
	}
}

// extractTextFromPDF uses UniPDF to get all text from a PDF document.
func extractTextFromPDF(r io.ReadSeeker) (string, error) {
	pdfReader, err := model.NewPdfReader(r)
	if err != nil {
		return "", err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", err
		}

		ex, err := extractor.New(page)
		if err != nil {
			return "", err
		}

		text, err := ex.ExtractText()
		if err != nil {
			return "", err
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	return strings.TrimSpace(sb.String()), nil
}

// NoteImporter turns uploaded or watched documents into notes. The file name
// without its extension becomes the title.
type NoteImporter struct {
	notes    *NoteSynchronizer
	maxChars int
	splitter textsplitter.TextSplitter
	log      *logrus.Entry
}

func NewNoteImporter(notes *NoteSynchronizer, maxChars int) *NoteImporter {
	if maxChars <= 0 {
		maxChars = DefaultMaxImportChars
	}
	return &NoteImporter{
		notes:    notes,
		maxChars: maxChars,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(maxChars),
			textsplitter.WithChunkOverlap(0),
		),
		log: logrus.WithField("component", "importer"),
	}
}

// Import creates a new note for ownerID from an uploaded document.
func (i *NoteImporter) Import(ctx context.Context, ownerID, filename string, r io.ReadSeeker) (*models.Note, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	title, content, err := i.read(filename, r)
	if err != nil {
		return nil, err
	}
	return i.notes.Create(ctx, title, content, ownerID)
}

// ImportPath creates or refreshes the note bound to a file on disk.
func (i *NoteImporter) ImportPath(ctx context.Context, ownerID, path string) (*models.Note, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	title, content, err := i.read(path, f)
	if err != nil {
		return nil, err
	}
	return i.notes.UpsertFromSource(ctx, ownerID, path, title, content)
}

// RemovePath deletes the note bound to a file on disk.
func (i *NoteImporter) RemovePath(ctx context.Context, ownerID, path string) error {
	return i.notes.DeleteBySource(ctx, ownerID, path)
}

func (i *NoteImporter) read(filename string, r io.ReadSeeker) (string, string, error) {
	if !IsSupportedFile(filename) {
		return "", "", invalidField("file", "extension")
	}
	text, err := ExtractText(filename, r)
	if err != nil {
		return "", "", wrap(ErrInvalidInput, fmt.Errorf("extract %s: %w", filepath.Base(filename), err))
	}
	base := filepath.Base(filename)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	return title, i.fit(filename, text), nil
}

// fit keeps the first splitter chunk of oversized documents. Sizes count
// runes, as the splitter does.
func (i *NoteImporter) fit(filename, text string) string {
	n := utf8.RuneCountInString(text)
	if n <= i.maxChars {
		return text
	}
	chunks, err := i.splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		return string([]rune(text)[:i.maxChars])
	}
	i.log.Warnf("IMPORTER: %s has %d chars, keeping the first of %d chunks", filepath.Base(filename), n, len(chunks))
	return chunks[0]
}
