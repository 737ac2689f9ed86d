// Package content turns analysis inputs into multi-modal message parts.
//
// Information Hiding:
// - Which image reference forms are accepted and how each is normalized
// - Caching of local image files that are read and base64-encoded
package content

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/richinex/verity/llm"
)

// DefaultCacheSize is the number of encoded local images kept in memory.
const DefaultCacheSize = 64

// assumedMediaType is attached to local files and bare base64 payloads.
const assumedMediaType = "image/jpeg"

// Builder builds user content. It is safe for concurrent use.
type Builder struct {
	cache *lru.Cache[string, string]
	stat  func(string) (os.FileInfo, error)
	read  func(string) ([]byte, error)
}

// NewBuilder creates a builder caching up to size encoded local images.
func NewBuilder(size int) (*Builder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	return &Builder{cache: cache, stat: os.Stat, read: os.ReadFile}, nil
}

// Build returns the user parts: the source URL line, the text, then one
// image part per reference. Empty inputs are skipped, so no text and no
// images yields an empty slice.
func (b *Builder) Build(text string, imageRefs []string, sourceURL string) []llm.Part {
	parts := make([]llm.Part, 0, 2+len(imageRefs))
	if sourceURL != "" {
		parts = append(parts, llm.TextPart(fmt.Sprintf("[Source URL]: %s\n", sourceURL)))
	}
	if text != "" {
		parts = append(parts, llm.TextPart(text))
	}
	for _, ref := range imageRefs {
		parts = append(parts, llm.ImagePart(b.ImageURL(ref)))
	}
	return parts
}

// ImageURL normalizes one image reference to something a model accepts:
//   - data:image... and http(s):// URLs are used as-is
//   - an existing local file is read and inlined as a JPEG data URL
//   - anything else is taken to be bare base64 and wrapped the same way
func (b *Builder) ImageURL(ref string) string {
	switch {
	case strings.HasPrefix(ref, "data:image"):
		return ref
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref
	}

	if info, err := b.stat(ref); err == nil && info.Mode().IsRegular() {
		if url, ok := b.localFile(ref, info); ok {
			return url
		}
	}
	return dataURL(ref)
}

func (b *Builder) localFile(path string, info os.FileInfo) (string, bool) {
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if url, ok := b.cache.Get(key); ok {
		return url, true
	}
	data, err := b.read(path)
	if err != nil {
		return "", false
	}
	url := dataURL(base64.StdEncoding.EncodeToString(data))
	b.cache.Add(key, url)
	return url, true
}

// CachedImages reports how many local image encodings are cached.
func (b *Builder) CachedImages() int {
	return b.cache.Len()
}

func dataURL(payload string) string {
	return "data:" + assumedMediaType + ";base64," + payload
}
