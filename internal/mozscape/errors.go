package mozscape

import (
	"errors"
	"fmt"
)

var (
	ErrNilTransport = errors.New("mozscape: http transport is nil")
	ErrNoTarget     = errors.New("mozscape: no target")
	ErrEmptyBatch   = errors.New("mozscape: empty batch")
	// ErrDecoding 所有解析失败都能 errors.Is 到它。
	ErrDecoding = errors.New("cannot parse response")
)

// DecodingError 响应体无法解析。属于协议不匹配，不要重试。
// StatusCode 为 0 表示不是来自一次 HTTP 响应（例如单独调用 Normalize）。
type DecodingError struct {
	StatusCode int
	Err        error
}

func (e *DecodingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("mozscape: cannot parse response (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("mozscape: cannot parse response: %v", e.Err)
}

func (e *DecodingError) Unwrap() []error {
	return []error{ErrDecoding, e.Err}
}
