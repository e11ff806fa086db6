// Package profiles holds the content-type policy table: for every accepted
// content type, its size ceiling, category and which artifacts to derive.
package profiles

import (
	"mime"
	"slices"
	"strings"
)

const mb = 1 << 20

// Profile is the processing policy attached to one content type.
type Profile struct {
	ContentType           string
	MaxSizeBytes          int64
	Category              Category
	GeneratePreview       bool
	GenerateThumbnail     bool
	AllowedInRealtimeChat bool
	Description           string
	Extensions            []string
}

func (p Profile) clone() Profile {
	p.Extensions = slices.Clone(p.Extensions)
	return p
}

// NormalizeContentType lowercases a media type and drops its parameters,
// so "Text/Plain; charset=utf-8" becomes "text/plain".
func NormalizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(ct)
}

// Defaults is the built-in policy table.
func Defaults() []Profile {
	return []Profile{
		{ContentType: "image/png", MaxSizeBytes: 15 * mb, Category: CategoryImage, GeneratePreview: true, GenerateThumbnail: true, AllowedInRealtimeChat: true, Description: "PNG image", Extensions: []string{".png"}},
		{ContentType: "image/jpeg", MaxSizeBytes: 15 * mb, Category: CategoryImage, GeneratePreview: true, GenerateThumbnail: true, AllowedInRealtimeChat: true, Description: "JPEG image", Extensions: []string{".jpg", ".jpeg"}},
		{ContentType: "image/gif", MaxSizeBytes: 10 * mb, Category: CategoryImage, GeneratePreview: true, GenerateThumbnail: true, AllowedInRealtimeChat: true, Description: "GIF image", Extensions: []string{".gif"}},
		{ContentType: "image/webp", MaxSizeBytes: 15 * mb, Category: CategoryImage, GeneratePreview: true, GenerateThumbnail: true, AllowedInRealtimeChat: true, Description: "WebP image", Extensions: []string{".webp"}},
		{ContentType: "image/bmp", MaxSizeBytes: 15 * mb, Category: CategoryImage, GeneratePreview: true, GenerateThumbnail: true, AllowedInRealtimeChat: false, Description: "Bitmap image", Extensions: []string{".bmp"}},
		{ContentType: "image/tiff", MaxSizeBytes: 25 * mb, Category: CategoryImage, GeneratePreview: true, GenerateThumbnail: true, AllowedInRealtimeChat: false, Description: "TIFF image", Extensions: []string{".tif", ".tiff"}},

		{ContentType: "video/mp4", MaxSizeBytes: 100 * mb, Category: CategoryVideo, GeneratePreview: false, GenerateThumbnail: true, AllowedInRealtimeChat: true, Description: "MP4 video", Extensions: []string{".mp4", ".m4v"}},
		{ContentType: "video/webm", MaxSizeBytes: 100 * mb, Category: CategoryVideo, GeneratePreview: false, GenerateThumbnail: true, AllowedInRealtimeChat: true, Description: "WebM video", Extensions: []string{".webm"}},
		{ContentType: "video/quicktime", MaxSizeBytes: 100 * mb, Category: CategoryVideo, GeneratePreview: false, GenerateThumbnail: true, AllowedInRealtimeChat: false, Description: "QuickTime video", Extensions: []string{".mov"}},

		{ContentType: "audio/mpeg", MaxSizeBytes: 50 * mb, Category: CategoryAudio, Description: "MP3 audio", AllowedInRealtimeChat: true, Extensions: []string{".mp3"}},
		{ContentType: "audio/wav", MaxSizeBytes: 50 * mb, Category: CategoryAudio, Description: "WAV audio", Extensions: []string{".wav"}},
		{ContentType: "audio/ogg", MaxSizeBytes: 50 * mb, Category: CategoryAudio, Description: "Ogg audio", AllowedInRealtimeChat: true, Extensions: []string{".ogg", ".oga"}},
		{ContentType: "audio/mp4", MaxSizeBytes: 50 * mb, Category: CategoryAudio, Description: "AAC/M4A audio", AllowedInRealtimeChat: true, Extensions: []string{".m4a"}},

		{ContentType: "application/pdf", MaxSizeBytes: 25 * mb, Category: CategoryDocument, GeneratePreview: true, GenerateThumbnail: true, AllowedInRealtimeChat: true, Description: "PDF document", Extensions: []string{".pdf"}},
		{ContentType: "application/msword", MaxSizeBytes: 25 * mb, Category: CategoryDocument, GeneratePreview: true, GenerateThumbnail: true, Description: "Word document", Extensions: []string{".doc"}},
		{ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", MaxSizeBytes: 25 * mb, Category: CategoryDocument, GeneratePreview: true, GenerateThumbnail: true, AllowedInRealtimeChat: true, Description: "Word document", Extensions: []string{".docx"}},
		{ContentType: "application/vnd.ms-powerpoint", MaxSizeBytes: 50 * mb, Category: CategoryPresentation, GeneratePreview: true, GenerateThumbnail: true, Description: "PowerPoint presentation", Extensions: []string{".ppt"}},
		{ContentType: "application/vnd.openxmlformats-officedocument.presentationml.presentation", MaxSizeBytes: 50 * mb, Category: CategoryPresentation, GeneratePreview: true, GenerateThumbnail: true, AllowedInRealtimeChat: true, Description: "PowerPoint presentation", Extensions: []string{".pptx"}},

		{ContentType: "text/plain", MaxSizeBytes: 5 * mb, Category: CategoryText, AllowedInRealtimeChat: true, Description: "Plain text", Extensions: []string{".txt", ".log"}},
		{ContentType: "text/markdown", MaxSizeBytes: 5 * mb, Category: CategoryText, AllowedInRealtimeChat: true, Description: "Markdown", Extensions: []string{".md", ".markdown"}},
		{ContentType: "text/csv", MaxSizeBytes: 10 * mb, Category: CategoryText, AllowedInRealtimeChat: true, Description: "CSV table", Extensions: []string{".csv"}},

		{ContentType: "application/json", MaxSizeBytes: 5 * mb, Category: CategoryCode, AllowedInRealtimeChat: true, Description: "JSON", Extensions: []string{".json"}},
		{ContentType: "text/javascript", MaxSizeBytes: 5 * mb, Category: CategoryCode, AllowedInRealtimeChat: true, Description: "JavaScript source", Extensions: []string{".js", ".mjs"}},
		{ContentType: "text/x-python", MaxSizeBytes: 5 * mb, Category: CategoryCode, AllowedInRealtimeChat: true, Description: "Python source", Extensions: []string{".py"}},
		{ContentType: "text/x-go", MaxSizeBytes: 5 * mb, Category: CategoryCode, AllowedInRealtimeChat: true, Description: "Go source", Extensions: []string{".go"}},
		{ContentType: "text/html", MaxSizeBytes: 5 * mb, Category: CategoryCode, Description: "HTML document", Extensions: []string{".html", ".htm"}},

		{ContentType: "application/zip", MaxSizeBytes: 100 * mb, Category: CategoryArchive, Description: "ZIP archive", Extensions: []string{".zip"}},
		{ContentType: "application/gzip", MaxSizeBytes: 100 * mb, Category: CategoryArchive, Description: "Gzip archive", Extensions: []string{".gz", ".tgz"}},
		{ContentType: "application/x-7z-compressed", MaxSizeBytes: 100 * mb, Category: CategoryArchive, Description: "7-Zip archive", Extensions: []string{".7z"}},
	}
}
