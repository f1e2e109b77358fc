package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Loader turns the raw bytes of an uploaded document into plain text.
type Loader interface {
	Extract(data []byte) (string, error)
}

var byExt = map[string]Loader{
	".pdf":      pdfLoader{},
	".md":       newMarkdownLoader(),
	".markdown": newMarkdownLoader(),
}

// ForName picks a loader from the file extension. Unknown extensions are read
// as UTF-8 text.
func ForName(name string) Loader {
	if l, ok := byExt[strings.ToLower(filepath.Ext(name))]; ok {
		return l
	}
	return textLoader{}
}

func Extract(name string, data []byte) (string, error) {
	text, err := ForName(name).Extract(data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	return text, nil
}

func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := byExt[ext]; ok {
		return true
	}
	return ext == ".txt" || ext == ""
}

type textLoader struct{}

func (textLoader) Extract(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("content is not valid utf-8")
	}
	return string(data), nil
}
