package files

import (
	"path/filepath"
	"strings"
)

const defaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".pdf":  "application/pdf",
	".txt":  "text/plain; charset=utf-8",
	".json": "application/json",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// ContentType guesses the MIME type from the extension only.
func ContentType(path string) string {
	if contentType, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return contentType
	}
	return defaultContentType
}
