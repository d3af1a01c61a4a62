package localdir

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/lungscan/internal/source"
)

// ManifestFileName is the optional JSONL file attributing images to submitters.
const ManifestFileName = "manifest.jsonl"

var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"bmp": true, "tif": true, "tiff": true, "webp": true,
}

// ManifestItem represents a line of manifest.jsonl.
type ManifestItem struct {
	Filename  string `json:"filename"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// Adapter implements source.Source over a directory of image files.
// When the directory holds a manifest.jsonl only the listed files are used.
type Adapter struct {
	dir    string
	items  []source.ImageItem
	loaded bool
}

// NewAdapter creates a new directory adapter.
func NewAdapter(dir string) *Adapter {
	return &Adapter{dir: dir}
}

func (a *Adapter) GetSourceID() string {
	return "localdir:" + filepath.Base(filepath.Clean(a.dir))
}

func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("Local directory (%s)", a.dir)
}

// FetchBatch returns items in filename order. The cursor is the index of the next item.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.ImageItem, string, error) {
	if !a.loaded {
		if err := a.loadItems(); err != nil {
			return nil, "", fmt.Errorf("failed to load images from %s: %w", a.dir, err)
		}
		a.loaded = true
	}

	startIndex := 0
	if cursor != "" {
		var err error
		startIndex, err = strconv.Atoi(cursor)
		if err != nil || startIndex < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if startIndex >= len(a.items) {
		return []source.ImageItem{}, "", nil
	}

	endIndex := startIndex + limit
	if limit <= 0 || endIndex > len(a.items) {
		endIndex = len(a.items)
	}

	nextCursor := ""
	if endIndex < len(a.items) {
		nextCursor = strconv.Itoa(endIndex)
	}
	return a.items[startIndex:endIndex], nextCursor, nil
}

func (a *Adapter) loadItems() error {
	manifestPath := filepath.Join(a.dir, ManifestFileName)
	if _, err := os.Stat(manifestPath); err == nil {
		return a.loadManifest(manifestPath)
	}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return err
	}
	a.items = []source.ImageItem{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if item, ok := a.newItem(ManifestItem{Filename: e.Name()}); ok {
			a.items = append(a.items, item)
		}
	}
	a.sortItems()
	return nil
}

func (a *Adapter) loadManifest(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	a.items = []source.ImageItem{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m ManifestItem
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			// Skip malformed lines
			continue
		}
		m.Filename = filepath.Base(m.Filename)
		if _, err := os.Stat(filepath.Join(a.dir, m.Filename)); err != nil {
			continue
		}
		if item, ok := a.newItem(m); ok {
			a.items = append(a.items, item)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading manifest: %w", err)
	}
	a.sortItems()
	return nil
}

func (a *Adapter) newItem(m ManifestItem) (source.ImageItem, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(m.Filename), "."))
	if !imageExtensions[ext] {
		return source.ImageItem{}, false
	}
	format := ext
	if format == "jpeg" {
		format = "jpg"
	}
	contentType := mime.TypeByExtension("." + ext)
	if contentType == "" {
		contentType = "image/" + format
	}
	return source.ImageItem{
		SourceID:    m.Filename,
		Filename:    m.Filename,
		LocalPath:   filepath.Join(a.dir, m.Filename),
		Format:      format,
		ContentType: contentType,
		UserName:    m.UserName,
		UserEmail:   m.UserEmail,
	}, true
}

func (a *Adapter) sortItems() {
	sort.Slice(a.items, func(i, j int) bool {
		return a.items[i].SourceID < a.items[j].SourceID
	})
}
