// Package formdata pulls a single file attachment out of a multipart/form-data
// body. It works on raw bytes so binary payloads that happen to contain line
// breaks or invalid UTF-8 pass through untouched.
package formdata

import (
	"bytes"
	"errors"
	"strings"
)

var ErrMalformedHeader = errors.New("no boundary found in Content-Type header")

var (
	headerSeparator = []byte("\r\n\r\n")
	lineEnding      = []byte("\r\n")

	dispositionHeader = []byte("content-disposition")
	filenameAttribute = []byte("filename")
)

const boundaryDirective = "boundary="

// Boundary returns the boundary token declared in a Content-Type header value.
func Boundary(contentType string) (string, error) {
	for _, segment := range strings.Split(contentType, ";") {
		segment = strings.TrimSpace(segment)
		if len(segment) < len(boundaryDirective) || !strings.EqualFold(segment[:len(boundaryDirective)], boundaryDirective) {
			continue
		}

		token := segment[len(boundaryDirective):]
		token = strings.TrimPrefix(token, `"`)
		token = strings.TrimSuffix(token, `"`)
		if token == "" {
			return "", ErrMalformedHeader
		}
		return token, nil
	}

	return "", ErrMalformedHeader
}

// Extract returns the payload of the first part that declares both a
// Content-Disposition header and a filename attribute. found is false when no
// part qualifies. The only error is ErrMalformedHeader, returned before the
// body is looked at.
func Extract(body []byte, contentType string) (payload []byte, found bool, err error) {
	boundary, err := Boundary(contentType)
	if err != nil {
		return nil, false, err
	}

	delimiter := append([]byte("--"), boundary...)

	for _, part := range bytes.Split(body, delimiter) {
		headerEnd := bytes.Index(part, headerSeparator)
		if headerEnd == -1 {
			continue
		}

		if !isFilePart(part[:headerEnd]) {
			continue
		}

		content := part[headerEnd+len(headerSeparator):]
		content = bytes.TrimSuffix(content, lineEnding)
		return content, true, nil
	}

	return nil, false, nil
}

// isFilePart looks only at the header block of a part. Body bytes never decide
// whether a part is the file, even if they contain a Content-Disposition line.
// Header names are case-insensitive, so the block is folded before matching.
func isFilePart(headers []byte) bool {
	folded := bytes.ToLower(headers)
	return bytes.Contains(folded, dispositionHeader) && bytes.Contains(folded, filenameAttribute)
}
