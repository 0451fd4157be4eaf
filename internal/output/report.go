// Package output writes the end-of-run Markdown report and renders the
// mirrored destination tree.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"
)

// Rename is one keyword rename for output.
type Rename struct {
	Before string
	After  string
}

// Failure is one per-file failure for output.
type Failure struct {
	Path    string
	Stage   string
	Message string
}

// Report contains all data for the run report.
type Report struct {
	Source      string
	Destination string
	Model       string
	Elapsed     time.Duration
	Directories int
	Files       int
	Copied      int
	Converted   int
	Renamed     int
	Suppressed  int
	Ignored     int
	Renames     []Rename
	Failures    []Failure
	// Aborted holds the fatal error that stopped the run, if any.
	Aborted string
}

const reportTemplate = `# Mirror Report: {{.SourceName}}

## Run
- Source: {{.Source}}
- Destination: {{.Destination}}
- Model: {{.Model}}
- Elapsed: {{.ElapsedStr}}
{{- if .Aborted}}
- Aborted: {{.Aborted}}
{{- end}}

## Totals
- Directories created: {{.Directories}}
- Files visited: {{.Files}}
- Copied: {{.Copied}}
- Converted from HEIC: {{.Converted}}
- Renamed: {{.Renamed}}
- Live photo sidecars skipped: {{.Suppressed}}
- Ignored: {{.Ignored}}
- Failures: {{.FailureCount}}
{{if .Renames}}
## Renamed Files

| Before | After |
|--------|-------|
{{range .Renames}}| {{.Before}} | {{.After}} |
{{end}}{{end}}
{{- if .Stages}}
## Failures
{{range .Stages}}
### {{.Name}} ({{len .Items}})

{{range .Items}}- ` + "`{{.Path}}`" + `: {{.Message}}
{{end}}{{end}}{{end}}`

type templateData struct {
	Report
	SourceName   string
	ElapsedStr   string
	FailureCount int
	Stages       []stageData
}

type stageData struct {
	Name  string
	Items []Failure
}

// WriteReport generates and writes the Markdown report.
func WriteReport(outputPath string, r Report) error {
	data := templateData{
		SourceName:   filepath.Base(r.Source),
		ElapsedStr:   formatDuration(r.Elapsed),
		FailureCount: len(r.Failures),
	}
	data.Report = r

	// Rename paths are shown relative to the destination.
	data.Renames = make([]Rename, 0, len(r.Renames))
	for _, rn := range r.Renames {
		data.Renames = append(data.Renames, Rename{
			Before: relTo(r.Destination, rn.Before),
			After:  relTo(r.Destination, rn.After),
		})
	}

	byStage := make(map[string][]Failure)
	for _, f := range r.Failures {
		f.Path = relTo(r.Destination, f.Path)
		f.Message = strings.ReplaceAll(f.Message, "\n", " ")
		byStage[f.Stage] = append(byStage[f.Stage], f)
	}
	for name, items := range byStage {
		data.Stages = append(data.Stages, stageData{Name: name, Items: items})
	}
	sort.Slice(data.Stages, func(i, j int) bool { return data.Stages[i].Name < data.Stages[j].Name })

	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := tmpl.Execute(file, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return file.Close()
}

// relTo returns path relative to base when path lies below base.
func relTo(base, path string) string {
	if base == "" {
		return path
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// formatDuration formats a duration as M:SS or H:MM:SS
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int64(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int64(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int64(d / time.Second)

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
