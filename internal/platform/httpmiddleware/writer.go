package httpmiddleware

import (
	"encoding/json"
	"net/http"
)

const RequestIDHeader = "X-Request-ID"

// ResponseWriter 记录状态码和写出字节数，给日志和指标用。
type ResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

// Wrap 已经包过的直接复用，保证整条链上只有一层。
func Wrap(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *ResponseWriter) Status() int   { return rw.statusCode }
func (rw *ResponseWriter) Size() int     { return rw.size }
func (rw *ResponseWriter) Written() bool { return rw.wroteHeader }

func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON 写 JSON 响应。
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError 统一错误体，已经写过响应头的不再写。
func WriteError(w http.ResponseWriter, r *http.Request, code int, message string) {
	if rw, ok := w.(*ResponseWriter); ok && rw.Written() {
		return
	}
	WriteJSON(w, code, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: r.Header.Get(RequestIDHeader),
	})
}
