package filter

import (
	"context"
	"strings"
)

// extensionMIME is a static extension -> MIME type table used to decide
// whether a URL's apparent content type is in an allowed set.
var extensionMIME = map[string]string{
	"txt": "text/plain", "html": "text/html", "htm": "text/html",
	"xhtml": "application/xhtml+xml", "css": "text/css", "csv": "text/csv",
	"js": "application/javascript",
	"bmp": "image/bmp", "gif": "image/gif", "jpeg": "image/jpeg", "jpg": "image/jpeg",
	"png": "image/png", "svg": "image/svg+xml", "webp": "image/webp",
	"mp3": "audio/mpeg", "wav": "audio/wav", "ogg": "audio/ogg",
	"mp4": "video/mp4", "webm": "video/webm", "avi": "video/x-msvideo", "mov": "video/quicktime",
	"json": "application/json", "xml": "application/xml", "pdf": "application/pdf",
	"zip": "application/zip", "gz": "application/gzip", "tar": "application/x-tar",
	"woff": "font/woff", "woff2": "font/woff2", "ttf": "font/ttf",
	"doc": "application/msword", "docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls": "application/vnd.ms-excel", "xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt": "application/vnd.ms-powerpoint", "pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"epub": "application/epub+zip",
}

// ContentTypeFilter admits a URL whose extension maps to one of the
// allowed MIME type prefixes (e.g. "text/", "image/"), or that has no
// extension at all. A URL whose extension is not in the extension table
// is rejected.
type ContentTypeFilter struct {
	counters
	allowed map[string]struct{}
}

// NewContentTypeFilter builds a filter admitting extensions whose MIME type
// contains one of allowedTypePrefixes (e.g. "text/html" or just "text").
func NewContentTypeFilter(allowedTypePrefixes []string) *ContentTypeFilter {
	f := &ContentTypeFilter{allowed: make(map[string]struct{})}
	prefixes := make([]string, len(allowedTypePrefixes))
	for i, p := range allowedTypePrefixes {
		prefixes[i] = strings.ToLower(p)
	}
	for ext, mime := range extensionMIME {
		for _, prefix := range prefixes {
			if strings.Contains(mime, prefix) {
				f.allowed[ext] = struct{}{}
				break
			}
		}
	}
	return f
}

func (f *ContentTypeFilter) Apply(_ context.Context, candidate string) bool {
	return f.record(f.matches(candidate))
}

func (f *ContentTypeFilter) matches(candidate string) bool {
	ext := urlExtension(candidate)
	if ext == "" {
		return true
	}
	_, ok := f.allowed[ext]
	return ok
}

// urlExtension extracts the lowercase file extension (without dot) from the
// final path segment of candidate, ignoring query string and fragment.
func urlExtension(candidate string) string {
	s := candidate
	if idx := strings.IndexAny(s, "?#"); idx != -1 {
		s = s[:idx]
	}
	if idx := strings.LastIndexByte(s, '/'); idx != -1 {
		s = s[idx+1:]
	}
	dot := strings.LastIndexByte(s, '.')
	if dot == -1 || dot == len(s)-1 {
		return ""
	}
	ext := s[dot+1:]
	for _, c := range ext {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return ""
		}
	}
	return strings.ToLower(ext)
}
