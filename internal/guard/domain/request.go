package domain

import (
	"net/url"
	"path"
	"strings"
)

// Request type names. The set is open: callers may pass any free-text type.
const (
	RequestTypeHTTP           = "http"
	RequestTypeScript         = "script"
	RequestTypeImage          = "image"
	RequestTypeMedia          = "media"
	RequestTypeStylesheet     = "stylesheet"
	RequestTypeFont           = "font"
	RequestTypeXMLHTTPRequest = "xmlhttprequest"
	RequestTypeOther          = "other"
)

// Request is one intercepted outbound request. It is an immutable value.
type Request struct {
	URL    string // full URL as observed at interception time
	Type   string // request type, see RequestType* constants
	Origin string // optional originating page or module
}

// NewRequest builds a Request, defaulting an empty type to "other".
func NewRequest(rawURL, reqType, origin string) Request {
	if strings.TrimSpace(reqType) == "" {
		reqType = RequestTypeOther
	}
	return Request{URL: rawURL, Type: reqType, Origin: origin}
}

// DetermineRequestType derives a request type from a content type, falling back
// to the extension of the URL path.
func DetermineRequestType(rawURL, contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return RequestTypeImage
	case strings.HasPrefix(ct, "video/"), strings.HasPrefix(ct, "audio/"):
		return RequestTypeMedia
	case strings.Contains(ct, "text/css"):
		return RequestTypeStylesheet
	case strings.Contains(ct, "javascript"):
		return RequestTypeScript
	case strings.HasPrefix(ct, "font/"):
		return RequestTypeFont
	}

	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	switch strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".") {
	case "css":
		return RequestTypeStylesheet
	case "js", "mjs":
		return RequestTypeScript
	case "jpg", "jpeg", "png", "gif", "webp", "svg", "ico":
		return RequestTypeImage
	case "mp4", "webm", "avi", "mov", "mp3", "wav", "ogg":
		return RequestTypeMedia
	case "woff", "woff2", "ttf", "otf", "eot":
		return RequestTypeFont
	case "xml":
		return RequestTypeXMLHTTPRequest
	default:
		return RequestTypeOther
	}
}
