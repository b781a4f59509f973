package server

import (
	"mime"
	"path/filepath"
	"strings"
)

const (
	contentTypeHTML        = "text/html"
	contentTypeOctetStream = "application/octet-stream"
)

type Category int

const (
	CategoryBinary Category = iota
	CategoryText
	CategoryImage
)

func (c Category) String() string {
	switch c {
	case CategoryText:
		return "text"
	case CategoryImage:
		return "image"
	default:
		return "binary"
	}
}

// knownTypes is consulted before the mime package so detection does not
// depend on the host's mime.types files.
var knownTypes = map[string]string{
	".txt":  "text/plain",
	".log":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".xml":  "text/xml",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".json": "application/json",
}

// DetectContentType guesses a content type from the file extension.
// Unknown extensions are application/octet-stream.
func DetectContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return contentTypeOctetStream
	}

	if ct, ok := knownTypes[ext]; ok {
		return ct
	}

	if ct := mime.TypeByExtension(ext); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt
		}
		return ct
	}

	return contentTypeOctetStream
}

// Classify picks the serving strategy for a content type.
func Classify(contentType string) Category {
	switch {
	case strings.HasPrefix(contentType, "text/"):
		return CategoryText
	case strings.HasPrefix(contentType, "image/"):
		return CategoryImage
	default:
		return CategoryBinary
	}
}
