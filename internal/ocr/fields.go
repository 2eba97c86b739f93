// Package ocr turns recognized identity-document text into editable fields
// and keeps a local log of saved captures.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"lead-allocation/internal/models"
)

const (
	LabelName = "Name"
	LabelID   = "ID Number"
	LabelDOB  = "DOB"
)

// dd/mm/yyyy, dd-mm-yyyy, yyyy-mm-dd and friends
var dobPattern = regexp.MustCompile(`\b(\d{2}[/\-]\d{2}[/\-]\d{4}|\d{4}[/\-]\d{2}[/\-]\d{2})\b`)

var (
	ErrNoText     = errors.New("no text recognized")
	ErrFieldIndex = errors.New("field index out of range")
)

// Extractor is the on-device text recognizer: ordered lines for an image.
type Extractor interface {
	Recognize(ctx context.Context, imageURI string) ([]string, error)
}

// EmptyFields is the form before anything was captured.
func EmptyFields() []models.Field {
	return []models.Field{
		{Label: LabelName},
		{Label: LabelID},
		{Label: LabelDOB},
	}
}

// MockConfidence returns a value in 60..99.
func MockConfidence() int { return rand.Intn(40) + 60 }

// ExtractFields maps line 0 to the name, line 1 to the ID number, and the
// first date found anywhere in the text to the date of birth.
func ExtractFields(lines []string, confidence func() int) []models.Field {
	if confidence == nil {
		confidence = MockConfidence
	}
	line := func(i int) string {
		if i < len(lines) {
			return lines[i]
		}
		return ""
	}
	dob := dobPattern.FindString(strings.Join(lines, " "))

	return []models.Field{
		{Label: LabelName, Value: line(0), Confidence: confidence()},
		{Label: LabelID, Value: line(1), Confidence: confidence()},
		{Label: LabelDOB, Value: dob, Confidence: confidence()},
	}
}

// UpdateField returns a copy of fields with fields[idx].Value replaced.
func UpdateField(fields []models.Field, idx int, value string) ([]models.Field, error) {
	if idx < 0 || idx >= len(fields) {
		return nil, fmt.Errorf("%w: %d", ErrFieldIndex, idx)
	}
	out := make([]models.Field, len(fields))
	copy(out, fields)
	out[idx].Value = value
	return out, nil
}

// Capture runs the extractor and parses its output.
func Capture(ctx context.Context, ex Extractor, imageURI string) ([]models.Field, error) {
	lines, err := ex.Recognize(ctx, imageURI)
	if err != nil {
		return nil, fmt.Errorf("recognize %s: %w", imageURI, err)
	}
	if len(lines) == 0 {
		return nil, ErrNoText
	}
	return ExtractFields(lines, nil), nil
}
