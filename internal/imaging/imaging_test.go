package imaging

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x % 256), B: 40, A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(w, h), &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

// orientationTIFF builds a little-endian TIFF structure with a single IFD0
// entry: Orientation = v.
func orientationTIFF(v uint16) []byte {
	var b []byte
	b = append(b, 'I', 'I', 0x2A, 0x00)
	b = binary.LittleEndian.AppendUint32(b, 8)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint16(b, 0x0112)
	b = binary.LittleEndian.AppendUint16(b, 3)
	b = binary.LittleEndian.AppendUint32(b, 1)
	b = binary.LittleEndian.AppendUint16(b, v)
	b = binary.LittleEndian.AppendUint16(b, 0)
	b = binary.LittleEndian.AppendUint32(b, 0)
	return b
}

// withAPP1 inserts an Exif APP1 segment holding tiff right after SOI.
func withAPP1(jpeg, tiff []byte) []byte {
	payload := append([]byte("Exif\x00\x00"), tiff...)
	out := []byte{0xFF, 0xD8, 0xFF, 0xE1}
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)+2))
	out = append(out, payload...)
	return append(out, jpeg[2:]...)
}

func TestEnsureExifSplicesBlob(t *testing.T) {
	plain := encodeJPEG(t, 16, 16)
	require.False(t, HasExif(plain))

	blob := orientationTIFF(6)
	out, err := EnsureExif(plain, blob)
	require.NoError(t, err)
	assert.True(t, HasExif(out))
	assert.Equal(t, 1, Orientation(out), "pixels are already rotated by the converter")
	assert.Equal(t, orientationTIFF(6), blob, "caller's blob is not modified")

	_, err = jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err, "spliced JPEG must still decode")
}

func TestEnsureExifAcceptsHeaderedBlob(t *testing.T) {
	plain := encodeJPEG(t, 8, 8)
	blob := append([]byte("Exif\x00\x00"), orientationTIFF(3)...)

	out, err := EnsureExif(plain, blob)
	require.NoError(t, err)
	assert.True(t, HasExif(out))
	assert.Equal(t, 1, Orientation(out))
	assert.Equal(t, byte(3), blob[len(blob)-8], "caller's blob is not modified")
}

func TestEnsureExifKeepsExisting(t *testing.T) {
	withExif := withAPP1(encodeJPEG(t, 8, 8), orientationTIFF(8))
	require.Equal(t, 8, Orientation(withExif))

	out, err := EnsureExif(withExif, orientationTIFF(1))
	require.NoError(t, err)
	assert.Equal(t, withExif, out)
	assert.Equal(t, 8, Orientation(out))
}

func TestEnsureExifNoBlob(t *testing.T) {
	plain := encodeJPEG(t, 8, 8)
	out, err := EnsureExif(plain, nil)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestEnsureExifGarbageBlob(t *testing.T) {
	plain := encodeJPEG(t, 8, 8)
	out, err := EnsureExif(plain, []byte("definitely not tiff"))
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestEnsureExifNotJPEG(t *testing.T) {
	_, err := EnsureExif([]byte("GIF89a"), orientationTIFF(1))
	require.ErrorIs(t, err, ErrNotJPEG)
}

func TestResetOrientation(t *testing.T) {
	le := orientationTIFF(6)
	resetOrientation(le)
	assert.Equal(t, 1, Orientation(withAPP1(encodeJPEG(t, 4, 4), le)))

	// Same entry in big-endian order.
	be := []byte{'M', 'M', 0x00, 0x2A, 0, 0, 0, 8, 0, 1, 0x01, 0x12, 0, 3, 0, 0, 0, 1, 0, 5, 0, 0, 0, 0, 0, 0}
	resetOrientation(be)
	assert.Equal(t, 1, Orientation(withAPP1(encodeJPEG(t, 4, 4), be)))

	for _, bad := range [][]byte{nil, []byte("II*"), []byte("XX*\x00\x08\x00\x00\x00"), {'I', 'I', 0x2A, 0, 0xFF, 0, 0, 0}} {
		assert.NotPanics(t, func() { resetOrientation(bad) })
	}
}

func TestOrientationMissing(t *testing.T) {
	assert.Zero(t, Orientation(encodeJPEG(t, 4, 4)))
}

func TestPreviewDownsizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, solidImage(400, 200)))
	require.NoError(t, f.Close())

	data, err := Preview(path, 100)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestPreviewPassThrough(t *testing.T) {
	dir := t.TempDir()

	small := filepath.Join(dir, "small.jpg")
	smallData := encodeJPEG(t, 20, 20)
	require.NoError(t, os.WriteFile(small, smallData, 0o600))

	got, err := Preview(small, 100)
	require.NoError(t, err)
	assert.Equal(t, smallData, got)

	got, err = Preview(small, 0)
	require.NoError(t, err)
	assert.Equal(t, smallData, got)

	bmp := filepath.Join(dir, "pic.bmp")
	require.NoError(t, os.WriteFile(bmp, []byte("BM not decodable here"), 0o600))
	got, err = Preview(bmp, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("BM not decodable here"), got)
}

func TestPreviewMissingFile(t *testing.T) {
	_, err := Preview("/nonexistent/image.jpg", 100)
	require.Error(t, err)
}

func stubLookPath(t *testing.T, available map[string]string) {
	t.Helper()
	orig := lookPath
	lookPath = func(name string) (string, error) {
		if p, ok := available[name]; ok {
			return p, nil
		}
		return "", exec.ErrNotFound
	}
	t.Cleanup(func() { lookPath = orig })
}

func TestToolPreference(t *testing.T) {
	stubLookPath(t, map[string]string{"magick": "/usr/bin/magick", "ffmpeg": "/usr/bin/ffmpeg"})

	tool, err := (&HEIFConverter{}).Tool()
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/magick", tool)

	tool, err = (&HEIFConverter{Converters: []string{"ffmpeg"}}).Tool()
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/ffmpeg", tool)
}

func TestNoConverter(t *testing.T) {
	stubLookPath(t, nil)

	_, err := (&HEIFConverter{}).ToJPEG(context.Background(), []byte("heic"))
	require.ErrorIs(t, err, ErrNoConverter)
}

func TestConverterArgs(t *testing.T) {
	assert.Equal(t, []string{"-q", "92", "in", "out"}, converterArgs("heif-convert", "in", "out", 92))
	assert.Equal(t, []string{"in", "-quality", "80", "out"}, converterArgs("magick", "in", "out", 80))
	assert.Equal(t, []string{"-loglevel", "error", "-y", "-i", "in", "-frames:v", "1", "-q:v", "2", "out"},
		converterArgs("ffmpeg", "in", "out", 100))
}

// fakeConverter writes a shell script that behaves like heif-convert by
// copying a prepared JPEG to its last argument.
func fakeConverter(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script converters need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "heif-convert")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))
	return path
}

func TestToJPEGWithFakeConverter(t *testing.T) {
	jpegPath := filepath.Join(t.TempDir(), "fixture.jpg")
	fixture := encodeJPEG(t, 12, 12)
	require.NoError(t, os.WriteFile(jpegPath, fixture, 0o600))
	t.Setenv("FIXTURE_JPEG", jpegPath)

	stubLookPath(t, map[string]string{"heif-convert": fakeConverter(t, `cp "$FIXTURE_JPEG" "$4"`)})

	got, err := (&HEIFConverter{}).ToJPEG(context.Background(), []byte("heic bytes"))
	require.NoError(t, err)
	assert.Equal(t, fixture, got.JPEG)
	assert.Nil(t, got.Exif, "exiftool is stubbed out")
}

func TestToJPEGConverterFailure(t *testing.T) {
	stubLookPath(t, map[string]string{"heif-convert": fakeConverter(t, `echo "bad input" >&2; exit 1`)})

	_, err := (&HEIFConverter{}).ToJPEG(context.Background(), []byte("heic bytes"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Contains(t, err.Error(), "bad input")
}

func TestToJPEGRealConverter(t *testing.T) {
	if _, err := exec.LookPath("heif-convert"); err != nil {
		t.Skip("heif-convert not found, skipping test")
	}
	if _, err := exec.LookPath("heif-enc"); err != nil {
		t.Skip("heif-enc not found, skipping test")
	}

	dir := t.TempDir()
	pngPath := filepath.Join(dir, "in.png")
	f, err := os.Create(pngPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, solidImage(64, 64)))
	require.NoError(t, f.Close())

	heicPath := filepath.Join(dir, "in.heic")
	if err := exec.Command("heif-enc", "-o", heicPath, pngPath).Run(); err != nil {
		t.Skipf("heif-enc could not create a fixture: %v", err)
	}
	src, err := os.ReadFile(heicPath)
	require.NoError(t, err)

	got, err := (&HEIFConverter{Converters: []string{"heif-convert"}}).ToJPEG(context.Background(), src)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(got.JPEG))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
}
