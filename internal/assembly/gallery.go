package assembly

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuildGallery writes a static selection hub linking every produced preview
// so the operator can review variants before approving one.
func (e *Engine) BuildGallery(previewPaths []string) (string, error) {
	e.log.Info("finalizing selection gallery")

	var cards strings.Builder
	for i, path := range previewPaths {
		name := filepath.Base(path)
		fmt.Fprintf(&cards, `
      <div class="card">
        <h3>VARIANT %d</h3>
        <a href="%s" target="_blank">Open Preview</a>
      </div>`, i, name)
	}

	gallery := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <title>Stitcher | Design Review</title>
  <style>
    body { background-color: #050505; color: #fff; font-family: sans-serif; padding: 60px; }
    .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(300px, 1fr)); gap: 30px; }
    .card { background: #111; border: 1px solid #333; padding: 25px; border-radius: 12px; }
    .card h3 { color: #4ade80; margin-top: 0; }
    .card a { display: inline-block; background: #3b82f6; color: white; padding: 10px 20px; border-radius: 6px; text-decoration: none; font-weight: bold; }
  </style>
</head>
<body>
  <h1>DESIGN SELECTION HUB</h1>
  <div class="grid">%s
  </div>
  <p>Review variants, then approve a VARIANT_ID from the CLI.</p>
</body>
</html>
`, cards.String())

	previewDir := filepath.Join(e.outputDir, "previews")
	if err := os.MkdirAll(previewDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create preview directory: %w", err)
	}

	galleryPath := filepath.Join(previewDir, "gallery.html")
	if err := os.WriteFile(galleryPath, []byte(gallery), 0644); err != nil {
		return "", fmt.Errorf("failed to write gallery: %w", err)
	}
	return galleryPath, nil
}

// Polish removes leftover generation artifacts from the final file. Missing
// files are a no-op: polish never fails a finished assembly.
func Polish(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read artifact for polish: %w", err)
	}

	content := string(data)
	if !strings.Contains(content, "PLACEHOLDER") {
		return nil
	}

	content = strings.ReplaceAll(content, "PLACEHOLDER", "")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write polished artifact: %w", err)
	}
	return nil
}
