package resource

import (
	"path"
	"strings"
)

// DefaultType is the MIME type for leaves whose extension is unknown or missing.
const DefaultType = "application/octet-stream"

// DirectoryType is the MIME type reported for containers.
const DirectoryType = "application/x-directory"

// compoundTypes are multi-part extensions checked before the final extension.
// Ordered longest first so ".tar.gz" wins over ".gz".
var compoundTypes = []struct {
	suffix   string
	mimeType string
}{
	{".tar.bz2", "application/x-bzip2"},
	{".tar.gz", "application/x-gzip"},
	{".tar.xz", "application/x-xz"},
}

// extensionTypes maps a lowercase final extension to its MIME type. The table
// is fixed in code rather than read from the host's mime.types so listings are
// identical on every platform.
var extensionTypes = map[string]string{
	".7z":   "application/x-7z-compressed",
	".avi":  "video/x-msvideo",
	".bmp":  "image/bmp",
	".bz2":  "application/x-bzip2",
	".csv":  "text/csv",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".epub": "application/epub+zip",
	".flac": "audio/flac",
	".gif":  "image/gif",
	".gz":   "application/x-gzip",
	".htm":  "text/html",
	".html": "text/html",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".js":   "text/javascript",
	".json": "application/json",
	".md":   "text/markdown",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".odp":  "application/vnd.oasis.opendocument.presentation",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ogg":  "audio/ogg",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".rtf":  "application/rtf",
	".svg":  "image/svg+xml",
	".tar":  "application/x-tar",
	".tgz":  "application/x-gzip",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".tsv":  "text/tab-separated-values",
	".txt":  "text/plain",
	".wav":  "audio/wav",
	".webm": "video/webm",
	".webp": "image/webp",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xml":  "application/xml",
	".xz":   "application/x-xz",
	".zip":  "application/zip",
}

// TypeForName returns the MIME type for a file name based on its extension,
// falling back to DefaultType.
func TypeForName(name string) string {
	lower := strings.ToLower(path.Base(name))

	for _, ct := range compoundTypes {
		if strings.HasSuffix(lower, ct.suffix) && len(lower) > len(ct.suffix) {
			return ct.mimeType
		}
	}

	ext := path.Ext(lower)
	if ext == "" || ext == lower {
		return DefaultType
	}

	if t, ok := extensionTypes[ext]; ok {
		return t
	}

	return DefaultType
}
