package resource

import (
	"path"
	"strings"
)

// DefaultContentType is used for extensions missing from the table.
const DefaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".avif":        "image/avif",
	".blat":        "application/octet-stream",
	".css":         "text/css",
	".dat":         "application/octet-stream",
	".dll":         "application/octet-stream",
	".eot":         "application/vnd.ms-fontobject",
	".gif":         "image/gif",
	".htm":         "text/html",
	".html":        "text/html",
	".ico":         "image/x-icon",
	".jpeg":        "image/jpeg",
	".jpg":         "image/jpeg",
	".js":          "text/javascript",
	".json":        "application/json",
	".map":         "application/json",
	".mjs":         "text/javascript",
	".mp3":         "audio/mpeg",
	".mp4":         "video/mp4",
	".otf":         "font/otf",
	".pdb":         "application/octet-stream",
	".pdf":         "application/pdf",
	".png":         "image/png",
	".svg":         "image/svg+xml",
	".ttf":         "font/ttf",
	".txt":         "text/plain",
	".wasm":        "application/wasm",
	".webm":        "video/webm",
	".webmanifest": "application/manifest+json",
	".webp":        "image/webp",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".xml":         "text/xml",
}

// ContentType returns the MIME type for name's extension.
func ContentType(name string) string {
	if contentType, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return contentType
	}

	return DefaultContentType
}
