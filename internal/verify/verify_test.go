package verify

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeValidPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 120, A: 255})
		}
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating test image: %v", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
}

func TestScanFindsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	writeValidPNG(t, filepath.Join(dir, "wallhaven-good.png"))
	if err := os.WriteFile(filepath.Join(dir, "wallhaven-bad.jpg"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	bad, err := Scan(context.Background(), dir, 2)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(bad) != 1 {
		t.Fatalf("got %d bad files, expected 1: %+v", len(bad), bad)
	}
	if filepath.Base(bad[0].Path) != "wallhaven-bad.jpg" {
		t.Errorf("unexpected bad file %q", bad[0].Path)
	}
	if bad[0].Reason == "" {
		t.Error("expected a reason for the corrupt file")
	}
}

func TestScanTruncatedImage(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "wallhaven-full.png")
	writeValidPNG(t, full)
	data, err := os.ReadFile(full)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "wallhaven-cut.png"), data[:len(data)/2], 0644); err != nil {
		t.Fatal(err)
	}

	bad, err := Scan(context.Background(), dir, 2)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(bad) != 1 || filepath.Base(bad[0].Path) != "wallhaven-cut.png" {
		t.Fatalf("expected only the truncated file flagged, got %+v", bad)
	}
}

func TestScanEmptyDir(t *testing.T) {
	bad, err := Scan(context.Background(), t.TempDir(), 2)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(bad) != 0 {
		t.Fatalf("expected no bad files, got %+v", bad)
	}
}
