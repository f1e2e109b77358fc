package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

// multipart framing and the small form fields ride on top of the file
const formOverhead = 1024 * 1024

// uploadLimit is the largest accepted document in bytes.
type uploadLimit int64

func (l uploadLimit) String() string {
	const mb = 1024 * 1024
	if l <= 0 {
		return "0MB"
	}
	value := int64(l) / mb
	if value <= 0 {
		value = 1
	}
	return strconv.FormatInt(value, 10) + "MB"
}

func (l uploadLimit) tooLarge() error {
	return fmt.Errorf("file exceeds %s: %w", l, appErr.ErrTooLarge)
}

// guard caps the request body so an oversized upload fails while parsing.
func (l uploadLimit) guard(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(l)+formOverhead)
}

// overflow reports whether a multipart parse failure came from hitting the
// body cap.
func (l uploadLimit) overflow(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return l.tooLarge()
	}
	return nil
}

// read loads at most l bytes, failing when the file is larger.
func (l uploadLimit) read(declared int64, r io.Reader) ([]byte, error) {
	if declared > int64(l) {
		return nil, l.tooLarge()
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(l)+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > int64(l) {
		return nil, l.tooLarge()
	}
	return data, nil
}
