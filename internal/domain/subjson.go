package domain

import "strings"

// ExtractObject returns the exact substring of data holding the JSON object
// labeled by label, scanning from just after the `"label":` match and
// counting braces until the opener balances. The caller gets the original
// bytes, braces included, so digests and signatures computed by the writer
// remain reproducible regardless of field order or whitespace.
func ExtractObject(data, label string) (string, error) {
	query := `"` + label + `":`

	idx := strings.Index(data, query)
	if idx == -1 {
		return "", ErrMissingBody
	}
	bodyStart := idx + len(query)

	braceCount := 0
	inBody := false
	bodyEnd := -1

	for i := bodyStart; i < len(data); i++ {
		switch data[i] {
		case '{':
			inBody = true
			braceCount++
		case '}':
			braceCount--
			if inBody && braceCount == 0 {
				bodyEnd = i + 1
			}
		}
		if bodyEnd != -1 {
			break
		}
	}

	if bodyEnd == -1 {
		return "", ErrExtractionFailed
	}

	return data[bodyStart:bodyEnd], nil
}
