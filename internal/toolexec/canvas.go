package toolexec

import "strings"

// CanvasFileType is the display hint sent to the UI for a canvas-eligible
// generated file.
type CanvasFileType string

const (
	CanvasImage CanvasFileType = "image"
	CanvasPDF   CanvasFileType = "pdf"
	CanvasHTML  CanvasFileType = "html"
	CanvasText  CanvasFileType = "text"
	CanvasOther CanvasFileType = "other"
)

var canvasImageExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".bmp": true, ".ico": true,
}

var canvasTextExt = map[string]bool{
	".txt": true, ".md": true, ".rst": true, ".csv": true, ".json": true,
	".xml": true, ".yaml": true, ".yml": true, ".py": true, ".js": true,
	".css": true, ".ts": true, ".jsx": true, ".tsx": true, ".vue": true, ".sql": true,
}

var canvasHTMLExt = map[string]bool{".html": true, ".htm": true}

// isCanvasExtension reports whether ext (including the leading dot) should
// be displayed in the canvas rather than treated as an opaque download.
func isCanvasExtension(ext string) bool {
	return canvasImageExt[ext] || canvasTextExt[ext] || canvasHTMLExt[ext] || ext == ".pdf"
}

// canvasFileType classifies ext for display purposes.
func canvasFileType(ext string) CanvasFileType {
	switch {
	case canvasImageExt[ext]:
		return CanvasImage
	case ext == ".pdf":
		return CanvasPDF
	case canvasHTMLExt[ext]:
		return CanvasHTML
	case canvasTextExt[ext]:
		return CanvasText
	default:
		return CanvasOther
	}
}

// fileExtension returns the lowercase extension of filename, including the
// leading dot, or "" if filename has none.
func fileExtension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i:])
}
