// Package exifmeta inspects embedded capture metadata (EXIF) for risk signals
// that commonly follow post-capture editing: editor software markers,
// re-save timestamp drift, and stripped device fields.
package exifmeta

import (
	"io"
	"strings"

	"github.com/tamperlens/tamperlens/observability"
	"github.com/tamperlens/tamperlens/risk"
)

// Fields is the extracted capture metadata as display strings keyed by tag
// name.
type Fields map[string]string

// Extractor is the capability of pulling capture metadata out of an encoded
// image stream. An image without embedded metadata yields empty Fields and a
// nil error; errors are reserved for extraction machinery failures.
type Extractor interface {
	Extract(r io.Reader) (Fields, error)
}

// Result is the self-contained metadata inspection report.
type Result struct {
	Score    float64  `json:"score"`
	Verdict  string   `json:"verdict"`
	Flags    []string `json:"flags"`
	Metadata Fields   `json:"metadata"`
	Error    *string  `json:"error"`
}

// editingMarkers are matched case-insensitively against the software fields.
var editingMarkers = []string{"photoshop", "gimp", "paint.net", "paint shop", "adobe"}

// criticalFields are expected on genuine camera captures; their absence adds
// risk.
var criticalFields = []string{"Make", "Model", "DateTime"}

// NoMetadata is the fixed result for images carrying no capture metadata at
// all. Absence is itself a signal: editors and screenshot tools routinely
// strip EXIF.
func NoMetadata() Result {
	return Result{
		Score:    50,
		Verdict:  "SUSPICIOUS - No EXIF metadata found",
		Flags:    []string{"No EXIF metadata present (often stripped by editors or screenshots)."},
		Metadata: Fields{},
		Error:    nil,
	}
}

// ForPDF is the fixed result substituted for rendered PDF pages, which carry
// no embedded capture metadata by construction.
func ForPDF() Result {
	return Result{
		Score:    50,
		Verdict:  "SUSPICIOUS - No EXIF metadata found",
		Flags:    []string{"PDF input has no EXIF metadata; metadata checks are limited."},
		Metadata: Fields{},
		Error:    nil,
	}
}

// Inconclusive builds the fixed fallback result for a failed inspection.
func Inconclusive(reason string) Result {
	return Result{
		Score:    50,
		Verdict:  "INCONCLUSIVE - Metadata inspection failed",
		Flags:    []string{"Could not extract EXIF metadata."},
		Metadata: Fields{},
		Error:    &reason,
	}
}

// Inspector scores capture metadata for tampering risk.
type Inspector struct {
	extractor Extractor
	log       observability.Logger
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithExtractor replaces the default EXIF-backed extractor.
func WithExtractor(e Extractor) Option {
	return func(i *Inspector) { i.extractor = e }
}

// WithLogger sets the diagnostic logger.
func WithLogger(log observability.Logger) Option {
	return func(i *Inspector) { i.log = log }
}

// NewInspector constructs an Inspector with the EXIF extractor by default.
func NewInspector(opts ...Option) *Inspector {
	i := &Inspector{extractor: ExifExtractor{}, log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect extracts capture metadata from an encoded image stream and scores
// it. It never returns an error: extraction failure yields the fixed
// inconclusive fallback.
func (i *Inspector) Inspect(r io.Reader) Result {
	fields, err := i.extractor.Extract(r)
	if err != nil {
		return Inconclusive(err.Error())
	}
	return i.InspectFields(fields)
}

// InspectFields scores already-extracted metadata. Scoring is purely
// additive and capped at 100:
//
//	+30 editing-software marker in Software/ProcessingSoftware
//	+20 DateTime differs from DateTimeOriginal
//	+15 any of Make/Model/DateTime missing
func (i *Inspector) InspectFields(fields Fields) Result {
	if len(fields) == 0 {
		return NoMetadata()
	}

	var flags []string
	score := 0.0

	if software := detectEditingSoftware(fields); software != "" {
		score += 30
		flags = append(flags, "Edited with: "+software)
	}

	dateTime := fields["DateTime"]
	dateTimeOriginal := fields["DateTimeOriginal"]
	if dateTime != "" && dateTimeOriginal != "" && dateTime != dateTimeOriginal {
		score += 20
		flags = append(flags, "DateTime differs from DateTimeOriginal (possible re-save or edit).")
	}

	var missing []string
	for _, field := range criticalFields {
		if fields[field] == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		score += 15
		flags = append(flags, "Missing critical EXIF fields: "+strings.Join(missing, ", "))
	}

	score = risk.Clamp100(score)
	if flags == nil {
		flags = []string{}
	}

	i.log.Debug("metadata inspection complete",
		observability.Float64("score", score),
		observability.Int("fields", len(fields)))

	return Result{
		Score:    score,
		Verdict:  risk.Verdict(score, "METADATA"),
		Flags:    flags,
		Metadata: fields,
		Error:    nil,
	}
}

func detectEditingSoftware(fields Fields) string {
	software := fields["Software"]
	if software == "" {
		software = fields["ProcessingSoftware"]
	}
	if software == "" {
		return ""
	}
	searchable := strings.ToLower(software)
	for _, marker := range editingMarkers {
		if strings.Contains(searchable, marker) {
			return software
		}
	}
	return ""
}
