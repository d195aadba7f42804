package browser

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
)

var questionPolicy = bluemonday.StrictPolicy()

// Challenge is one presented CAPTCHA: decoded image bytes and the question text.
type Challenge struct {
	Image    []byte
	MimeType string
	Question string
}

// ParseChallenge decodes an inline data URI image source and cleans the question text.
func ParseChallenge(src, question string) (Challenge, error) {
	image, err := DecodeDataURI(src)
	if err != nil {
		return Challenge{}, err
	}

	mime := mimetype.Detect(image)
	if !strings.HasPrefix(mime.String(), "image/") {
		return Challenge{}, fmt.Errorf("%w: payload is %s, not an image", ErrExtraction, mime.String())
	}

	cleaned := strings.Join(strings.Fields(html.UnescapeString(questionPolicy.Sanitize(question))), " ")
	if cleaned == "" {
		return Challenge{}, fmt.Errorf("%w: question text is empty", ErrExtraction)
	}

	return Challenge{Image: image, MimeType: mime.String(), Question: cleaned}, nil
}

// DecodeDataURI returns the raw bytes of a "data:<mime>;base64,<payload>" source.
func DecodeDataURI(src string) ([]byte, error) {
	src = strings.TrimSpace(src)
	if !strings.HasPrefix(src, "data:") {
		return nil, fmt.Errorf("%w: image source is not a data uri", ErrExtraction)
	}

	header, payload, found := strings.Cut(src, ",")
	if !found || payload == "" {
		return nil, fmt.Errorf("%w: data uri has no payload", ErrExtraction)
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: data uri is not base64 encoded", ErrExtraction)
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image payload: %w", ErrExtraction, err)
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("%w: decoded image is empty", ErrExtraction)
	}
	return decoded, nil
}
