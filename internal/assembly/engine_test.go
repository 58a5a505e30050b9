package assembly

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stitcher/internal/design"
	"stitcher/internal/trace"
)

// fakeBackend answers every construction prompt with fixed HTML, optionally
// failing, and remembers the prompts it saw.
type fakeBackend struct {
	mu      sync.Mutex
	html    string
	err     error
	prompts []string
}

func (f *fakeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.html, nil
}

func (f *fakeBackend) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.Complete(ctx, userPrompt)
}

func newTestEngine(t *testing.T, backend *fakeBackend, componentDir string) *Engine {
	t.Helper()
	ledger := trace.NewLedger(filepath.Join(t.TempDir(), "trace.json"))
	return NewEngine(backend, ledger, filepath.Join(t.TempDir(), "output"), componentDir)
}

func TestStitchAll_WritesArtifact(t *testing.T) {
	backend := &fakeBackend{html: "<html><body><h1>Acme</h1></body></html>"}
	e := newTestEngine(t, backend, "")

	path, err := e.StitchAll(context.Background(), []string{"hero", "footer"}, design.FallbackToken(0), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.outputDir, "index.html"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<h1>Acme</h1>")

	require.Len(t, backend.prompts, 1)
	assert.Contains(t, backend.prompts[0], "hero, footer")
	assert.Contains(t, backend.prompts[0], design.FallbackToken(0).Colors.Primary)
}

func TestStitchAll_StripsMarkdownFences(t *testing.T) {
	backend := &fakeBackend{html: "```html\n<html><body>x</body></html>\n```"}
	e := newTestEngine(t, backend, "")

	path, err := e.StitchAll(context.Background(), []string{"hero"}, design.FallbackToken(0), "")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>x</body></html>", string(data))
}

func TestStitchAll_BackendFailureIsExplicit(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("model offline")}
	e := newTestEngine(t, backend, "")

	_, err := e.StitchAll(context.Background(), []string{"hero"}, design.FallbackToken(0), "")
	assert.Error(t, err)
}

func TestStitchAll_EmptyArtifactIsAFailure(t *testing.T) {
	backend := &fakeBackend{html: "   \n  "}
	e := newTestEngine(t, backend, "")

	_, err := e.StitchAll(context.Background(), []string{"hero"}, design.FallbackToken(0), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty artifact")
}

func TestStitchAll_ComponentLibraryInjected(t *testing.T) {
	compDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(compDir, "hero.html"), []byte("<section id=\"hero-block\"></section>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(compDir, "notes.txt"), []byte("ignore me"), 0644))

	backend := &fakeBackend{html: "<html></html>"}
	e := newTestEngine(t, backend, compDir)

	_, err := e.StitchAll(context.Background(), []string{"hero"}, design.FallbackToken(0), "")
	require.NoError(t, err)

	require.Len(t, backend.prompts, 1)
	assert.Contains(t, backend.prompts[0], "hero-block")
	assert.NotContains(t, backend.prompts[0], "ignore me")
}

func TestGeneratePreviews_ProducesIndexedFiles(t *testing.T) {
	backend := &fakeBackend{html: "<html>variant</html>"}
	e := newTestEngine(t, backend, "")

	variants := design.VariantSet{design.FallbackToken(0), design.FallbackToken(1), design.FallbackToken(2)}
	paths := e.GeneratePreviews(context.Background(), []string{"hero"}, variants)

	require.Len(t, paths, 3)
	for i, p := range paths {
		assert.Equal(t, fmt.Sprintf("variant_%d.html", i), filepath.Base(p))
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestGeneratePreviews_FailuresDropped(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("down")}
	e := newTestEngine(t, backend, "")

	paths := e.GeneratePreviews(context.Background(), []string{"hero"}, design.VariantSet{design.FallbackToken(0)})
	assert.Empty(t, paths)
}

func TestBuildGallery(t *testing.T) {
	backend := &fakeBackend{html: "<html></html>"}
	e := newTestEngine(t, backend, "")

	galleryPath, err := e.BuildGallery([]string{
		filepath.Join(e.outputDir, "previews", "variant_0.html"),
		filepath.Join(e.outputDir, "previews", "variant_1.html"),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(galleryPath)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, `href="variant_0.html"`)
	assert.Contains(t, html, "VARIANT 1")
}

func TestPolish_RemovesPlaceholders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>PLACEHOLDER</p><p>real</p>"), 0644))

	require.NoError(t, Polish(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<p></p><p>real</p>", string(data))
}

func TestPolish_MissingFileIsNoOp(t *testing.T) {
	assert.NoError(t, Polish(filepath.Join(t.TempDir(), "ghost.html")))
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unfenced", "<html></html>", "<html></html>"},
		{"html fence", "```html\n<div></div>\n```", "<div></div>"},
		{"bare fence", "```\n<div></div>\n```", "<div></div>"},
		{"unterminated fence", "```html\n<div></div>", "<div></div>"},
		{"leading whitespace", "  \n```html\n<p>x</p>\n```", "<p>x</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.input))
		})
	}
}
