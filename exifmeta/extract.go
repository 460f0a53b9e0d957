package exifmeta

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// maxDisplayChars bounds metadata values in reports; EXIF text fields can
// carry arbitrarily long payloads.
const maxDisplayChars = 100

// ExifExtractor pulls EXIF tags from JPEG/TIFF streams via goexif.
type ExifExtractor struct{}

// Extract decodes the EXIF block and renders every tag as a display string.
// Streams without EXIF data yield empty Fields and a nil error; the inspector
// treats that case as a signal, not a failure.
func (ExifExtractor) Extract(r io.Reader) (Fields, error) {
	x, err := exif.Decode(r)
	if err != nil || x == nil {
		return Fields{}, nil
	}
	fields := Fields{}
	// Walk never sees a non-nil error from our walker, so the returned error
	// can only come from a corrupt tag table; partial output is still useful.
	_ = x.Walk(fieldCollector{fields})
	return fields, nil
}

type fieldCollector struct {
	fields Fields
}

func (c fieldCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	c.fields[string(name)] = displayValue(tag)
	return nil
}

func displayValue(tag *tiff.Tag) string {
	var value string
	if s, err := tag.StringVal(); err == nil {
		value = s
	} else {
		value = tag.String()
	}
	return truncateDisplay(value)
}

// truncateDisplay flattens newlines, trims, enforces valid UTF-8 and caps the
// value at maxDisplayChars with a trailing ellipsis when cut.
func truncateDisplay(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.TrimSpace(strings.ToValidUTF8(value, "�"))
	if utf8.RuneCountInString(value) <= maxDisplayChars {
		return value
	}
	runes := []rune(value)
	return string(runes[:maxDisplayChars-1]) + "…"
}
