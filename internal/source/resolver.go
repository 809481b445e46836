package source

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"cadenza.click/internal/state"
)

// ContentType is the inferred classification of a media request's locator.
type ContentType int

const (
	ContentTypeUnknown ContentType = iota
	// ContentTypeHLS is a segmented stream described by an HLS manifest.
	ContentTypeHLS
	// ContentTypeProgressive is a single progressively-downloaded file.
	ContentTypeProgressive
)

// String returns the classification name.
func (c ContentType) String() string {
	switch c {
	case ContentTypeHLS:
		return "hls"
	case ContentTypeProgressive:
		return "progressive"
	default:
		return "unknown"
	}
}

var hlsExtensions = map[string]bool{
	".m3u8": true,
	".m3u":  true,
}

var progressiveExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".m4b":  true,
	".aac":  true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".flac": true,
	".wav":  true,
}

// Classify infers the content type of a request from its locator extension,
// or from an explicit extension override when the locator itself carries
// none. It is a pure function of its inputs: the same request and override
// always yield the same classification.
func Classify(req state.MediaRequest, extOverride string) ContentType {
	ext := strings.ToLower(extOverride)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	locator := req.URL
	if ext == "" {
		if u, err := url.Parse(locator); err == nil && u.Path != "" {
			ext = strings.ToLower(path.Ext(u.Path))
		} else {
			ext = strings.ToLower(path.Ext(locator))
		}
	}

	switch {
	case hlsExtensions[ext]:
		return ContentTypeHLS
	case progressiveExtensions[ext]:
		return ContentTypeProgressive
	}

	// Extensionless local files can still be classified by content.
	if t := sniffLocalFile(locator); t != ContentTypeUnknown {
		return t
	}

	slog.Debug("locator did not classify", "url", locator, "extension", ext)
	return ContentTypeUnknown
}

// sniffLocalFile falls back to magic-byte detection for file locators.
func sniffLocalFile(locator string) ContentType {
	filePath := strings.TrimPrefix(locator, "file://")
	if strings.Contains(filePath, "://") {
		return ContentTypeUnknown
	}

	detected, err := mimetype.DetectFile(filePath)
	if err != nil {
		slog.Debug("content sniff failed", "path", filePath, "error", err)
		return ContentTypeUnknown
	}

	mime := detected.String()
	switch {
	case strings.HasPrefix(mime, "audio/"):
		return ContentTypeProgressive
	case mime == "application/vnd.apple.mpegurl" || mime == "audio/mpegurl":
		return ContentTypeHLS
	}

	slog.Debug("sniffed mime type is not playable", "path", filePath, "mime", mime)
	return ContentTypeUnknown
}

// UnsupportedContentTypeError reports a locator whose inferred type has no
// source strategy. This is a configuration fault, not a recoverable playback
// failure, so it surfaces synchronously instead of through the state store.
type UnsupportedContentTypeError struct {
	Type ContentType
	URL  string
}

func (e *UnsupportedContentTypeError) Error() string {
	return fmt.Sprintf("no source strategy for content type %q (locator %s)", e.Type, e.URL)
}

// Resolver maps a media request to the strategy that can build its playable
// source. The strategy table is fixed at construction; resolution itself is
// stateless per call.
type Resolver struct {
	strategies map[ContentType]Strategy
}

// NewResolver creates a resolver with the default strategy table.
func NewResolver() *Resolver {
	slog.Debug("creating source resolver")
	return &Resolver{
		strategies: map[ContentType]Strategy{
			ContentTypeHLS:         newHLSStrategy(),
			ContentTypeProgressive: newProgressiveStrategy(),
		},
	}
}

// Resolve classifies the request and returns the matching strategy. An
// unmapped classification is a fatal configuration error naming the type.
func (r *Resolver) Resolve(req state.MediaRequest) (Strategy, error) {
	return r.ResolveWithExtension(req, "")
}

// ResolveWithExtension is Resolve with an explicit extension override for
// locators that carry none.
func (r *Resolver) ResolveWithExtension(req state.MediaRequest, extOverride string) (Strategy, error) {
	contentType := Classify(req, extOverride)

	strategy, ok := r.strategies[contentType]
	if !ok {
		err := &UnsupportedContentTypeError{Type: contentType, URL: req.URL}
		slog.Error("unsupported content type", "url", req.URL, "type", contentType.String())
		return nil, err
	}

	slog.Debug("request resolved",
		"url", req.URL,
		"content_type", contentType.String())
	return strategy, nil
}
