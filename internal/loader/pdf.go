package loader

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

type pdfLoader struct {
	// plainText is swapped in tests; nil means ledongthuc/pdf.
	plainText func(data []byte) (io.Reader, error)
}

func readPDFPlainText(data []byte) (io.Reader, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}
	return reader, nil
}

// Extract returns the plain text of a pdf. The parser panics on some
// malformed files; that is reported as an invalid document.
func (l pdfLoader) Extract(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v: %w", r, appErr.ErrInvalid)
		}
	}()
	plainText := l.plainText
	if plainText == nil {
		plainText = readPDFPlainText
	}
	reader, err := plainText(data)
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
