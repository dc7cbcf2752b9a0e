package main

import (
	"path/filepath"
)

const (
	headerContentType   = "Content-Type"
	headerContentLength = "Content-Length"

	mimeText    = "text/plain"
	mimeDefault = "application/octet-stream"
)

// Extensions are matched exactly, so "A.HTML" is served as mimeDefault.
var mimeTypes = map[string]string{
	// text
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".csv":  "text/csv",
	".txt":  "text/plain",
	".xml":  "application/xml",
	".json": "application/json",

	// images
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".webp": "image/webp",

	// audio
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",

	// video
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".wmv":  "video/x-ms-wmv",

	// applications and archives
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".rar":  "application/vnd.rar",
	".7z":   "application/x-7z-compressed",
	".exe":  "application/vnd.microsoft.portable-executable",
	".msi":  "application/x-msdownload",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",

	// fonts
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".woff":  "font/woff",
	".woff2": "font/woff2",

	".js":  "application/javascript",
	".swf": "application/x-shockwave-flash",
	".rtf": "application/rtf",
}

func pathToMime(path string) string {
	if mime, found := mimeTypes[filepath.Ext(path)]; found {
		return mime
	}
	return mimeDefault
}
