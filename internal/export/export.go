// Package export turns a category of stored accounts into a downloadable JSON
// document and optionally archives it in a blob store.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bulkgen/internal/accounts"
	"github.com/JakeFAU/bulkgen/internal/storage"
)

// ErrCategoryNotFound is returned for categories that cannot be exported.
var ErrCategoryNotFound = errors.New("category not found")

// FilenameLayout is the timestamp layout used in download filenames.
const FilenameLayout = "20060102_150405"

const contentType = "application/json"

// Downloadable lists the categories offered for download. Failed records are
// listable but not downloadable.
var Downloadable = []accounts.Category{accounts.All, accounts.Rare, accounts.Couples, accounts.Activated}

// Hasher fingerprints payloads.
type Hasher interface {
	Hash(data []byte) string
}

// Clock supplies the filename timestamp.
type Clock interface {
	Now() time.Time
}

// Config controls naming.
type Config struct {
	// Prefix is the blob path prefix (default "exports").
	Prefix string
	// FilePrefix starts every download filename (default "knx").
	FilePrefix string
}

// Document is a rendered export.
type Document struct {
	Category accounts.Category
	Filename string
	Hash     string
	Count    int
	Body     []byte
}

// Result describes an archived export.
type Result struct {
	URI      string `json:"uri"`
	Filename string `json:"filename"`
	Hash     string `json:"sha256"`
	Count    int    `json:"count"`
}

// Exporter renders and archives account exports.
type Exporter struct {
	reader accounts.Reader
	blobs  storage.BlobStore
	hasher Hasher
	clock  Clock
	cfg    Config
	logger *zap.Logger
}

// New builds an Exporter. blobs may be nil when archiving is disabled.
func New(
	reader accounts.Reader,
	blobs storage.BlobStore,
	hasher Hasher,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) (*Exporter, error) {
	if reader == nil {
		return nil, errors.New("export: account reader is required")
	}
	if hasher == nil {
		return nil, errors.New("export: hasher is required")
	}
	if clock == nil {
		return nil, errors.New("export: clock is required")
	}
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = "exports"
	}
	if strings.TrimSpace(cfg.FilePrefix) == "" {
		cfg.FilePrefix = "knx"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{reader: reader, blobs: blobs, hasher: hasher, clock: clock, cfg: cfg, logger: logger}, nil
}

// ParseDownloadable resolves name to a downloadable category.
func ParseDownloadable(name string) (accounts.Category, error) {
	c, ok := accounts.ParseCategory(name)
	if !ok {
		return "", ErrCategoryNotFound
	}
	for _, d := range Downloadable {
		if d == c {
			return c, nil
		}
	}
	return "", ErrCategoryNotFound
}

// Render collects every record of the category into an indented JSON array.
func (e *Exporter) Render(ctx context.Context, name string) (Document, error) {
	category, err := ParseDownloadable(name)
	if err != nil {
		return Document{}, err
	}
	records, err := e.reader.All(ctx, category)
	if err != nil {
		return Document{}, fmt.Errorf("export: collect %s: %w", category, err)
	}
	body, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return Document{}, fmt.Errorf("export: encode %s: %w", category, err)
	}
	return Document{
		Category: category,
		Filename: fmt.Sprintf("%s_%s_%s.json", e.cfg.FilePrefix, category, e.clock.Now().Format(FilenameLayout)),
		Hash:     e.hasher.Hash(body),
		Count:    len(records),
		Body:     body,
	}, nil
}

// Archived reports whether a blob store is configured.
func (e *Exporter) Archived() bool {
	return e.blobs != nil
}

// Export renders the category and uploads it to <prefix>/<category>/<hash>.json.
// Identical contents map to the same object.
func (e *Exporter) Export(ctx context.Context, name string) (Result, error) {
	if e.blobs == nil {
		return Result{}, errors.New("export: blob store is not configured")
	}
	doc, err := e.Render(ctx, name)
	if err != nil {
		return Result{}, err
	}
	objectPath := path.Join(e.cfg.Prefix, string(doc.Category), doc.Hash+".json")
	uri, err := e.blobs.PutObject(ctx, objectPath, contentType, bytes.NewReader(doc.Body))
	if err != nil {
		return Result{}, fmt.Errorf("export: upload %s: %w", doc.Category, err)
	}
	e.logger.Info("export archived",
		zap.String("category", string(doc.Category)),
		zap.String("uri", uri),
		zap.Int("records", doc.Count),
	)
	return Result{URI: uri, Filename: doc.Filename, Hash: doc.Hash, Count: doc.Count}, nil
}
