package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Output
	Output = &buf
	t.Cleanup(func() { Output = prev })
	return &buf
}

func TestProgressLive(t *testing.T) {
	buf := captureOutput(t)

	p := NewProgress("Mirroring", true)
	p.Update(1, 4, "trip/IMG_0001.HEIC")
	p.Update(2, 4, "trip/IMG_0002.jpg")
	p.Complete("Mirrored 4 files")
	p.Update(3, 4, "late.jpg")

	out := buf.String()
	assert.Contains(t, out, "1/4")
	assert.Contains(t, out, "2/4")
	assert.Contains(t, out, "IMG_0002.jpg")
	assert.Contains(t, out, "Mirrored 4 files")
	assert.NotContains(t, out, "late.jpg", "updates after completion are dropped")
}

func TestProgressQuiet(t *testing.T) {
	buf := captureOutput(t)

	p := NewProgress("Mirroring", false)
	p.Update(1, 2, "a.jpg")
	assert.Empty(t, buf.String())

	p.Error("Mirror aborted")
	assert.Contains(t, buf.String(), "Mirror aborted")
	assert.NotContains(t, buf.String(), "\r")
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, 10, strings.Count(renderProgressBar(50, 20), progressFull))
	assert.Equal(t, 20, strings.Count(renderProgressBar(150, 20), progressFull))
	assert.Equal(t, 20, strings.Count(renderProgressBar(0, 20), progressEmpty))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "a.jpg", shorten("a.jpg", 10))
	assert.Equal(t, "…/IMG_1.jpg", shorten("deep/dir/IMG_1.jpg", 11))
	assert.Equal(t, "xyz", shorten("xyz", 0))
}

func TestPrintFailures(t *testing.T) {
	buf := captureOutput(t)

	PrintFailures(nil)
	assert.Empty(t, buf.String())

	PrintFailures([]FailureLine{
		{Path: "/dst/a.jpg", Stage: "keywords", Err: errors.New("connection refused")},
	})
	out := buf.String()
	assert.Contains(t, out, "1 file(s) failed")
	assert.Contains(t, out, "[keywords]")
	assert.Contains(t, out, "/dst/a.jpg")
	assert.Contains(t, out, "connection refused")
}

func TestPrintHelpers(t *testing.T) {
	buf := captureOutput(t)

	PrintSuccess("Mirror complete")
	PrintInfo("Copied: 3")
	PrintWarning("No HEIC converter found")
	PrintError("Failed to write report")

	out := buf.String()
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "Mirror complete")
	assert.Contains(t, out, "Copied: 3")
	assert.Contains(t, out, "No HEIC converter found")
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "Failed to write report")
}
