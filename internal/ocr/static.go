package ocr

import "context"

// StaticLines is an Extractor for text recognized on the client.
type StaticLines []string

func (s StaticLines) Recognize(context.Context, string) ([]string, error) {
	return s, nil
}
