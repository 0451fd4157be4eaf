package keywords

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultPrompt is sent with every image. %d is replaced by the keyword bound.
const DefaultPrompt = "Get a list of the top %d keywords that describe the image."

// Extractor asks a vision model for descriptive keywords of an image.
type Extractor interface {
	Extract(ctx context.Context, image []byte, prompt string, maxKeywords int) ([]string, error)
}

// LoadFunc reads the bytes that are sent to the extractor for imagePath.
type LoadFunc func(imagePath string) ([]byte, error)

// Pipeline derives the sanitized keyword set for one still image at a time.
type Pipeline struct {
	Extractor   Extractor
	Prompt      string
	MaxKeywords int
	// Pace is waited before every extraction request.
	Pace time.Duration
	// Load defaults to os.ReadFile.
	Load LoadFunc
	// Logger receives a debug entry per model request. Nil disables it.
	Logger *log.Logger
}

// Derive returns the ordered, deduplicated and sanitized keywords for the
// image at imagePath. Empty tokens are kept; BuildName skips them.
func (p *Pipeline) Derive(ctx context.Context, imagePath string) ([]string, error) {
	if err := wait(ctx, p.Pace); err != nil {
		return nil, err
	}

	load := p.Load
	if load == nil {
		load = os.ReadFile
	}
	data, err := load(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	logger := p.logger()
	logger.Debug("requesting keywords", "path", imagePath, "bytes", len(data), "max", p.MaxKeywords)
	start := time.Now()
	raw, err := p.Extractor.Extract(ctx, data, p.prompt(), p.MaxKeywords)
	if err != nil {
		logger.Debug("keyword request failed", "path", imagePath, "elapsed", time.Since(start), "err", err)
		return nil, fmt.Errorf("keyword extraction failed: %w", err)
	}
	logger.Debug("keywords received", "path", imagePath, "elapsed", time.Since(start), "raw", raw)

	unique := Dedupe(raw)
	if p.MaxKeywords > 0 && len(unique) > p.MaxKeywords {
		unique = unique[:p.MaxKeywords]
	}

	out := make([]string, len(unique))
	for i, k := range unique {
		out[i] = Sanitize(k)
	}
	return out, nil
}

func (p *Pipeline) prompt() string {
	prompt := p.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return strings.ReplaceAll(prompt, "%d", strconv.Itoa(p.MaxKeywords))
}

func (p *Pipeline) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.New(io.Discard)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
