package api

import (
	"errors"
	"fmt"
)

var (
	ErrUploadTimeout   = errors.New("upload timed out")
	ErrUploadNetwork   = errors.New("upload network error")
	ErrInvalidResponse = errors.New("invalid server response")
)

// FileTooLargeError rejects an upload before any network call, carrying
// the offending size for display.
type FileTooLargeError struct {
	Size int64
	Max  int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file too large: %.2fMB exceeds the %dMB limit",
		float64(e.Size)/(1024*1024), e.Max/(1024*1024))
}

// UploadError is a non-success response from the upload endpoint. The
// message is server-provided when present, otherwise derived from the
// HTTP status.
type UploadError struct {
	StatusCode int
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed (%d): %s", e.StatusCode, e.Message)
}

// RequestError is a non-success response from any other collaborator
// endpoint.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}
