package mozscape

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MetricRecord 是单个目标的指标，键为 API 的短字段名（如 "pda"、"upa"）。
// 出现哪些键取决于请求的 Cols。
type MetricRecord map[string]any

// Float 读取数值字段。
func (r MetricRecord) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// String 读取字符串字段。
func (r MetricRecord) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Result 是归一化后的结果：恰好一条时 Single 返回这条本身，
// 其余情况通过 All 按 API 返回顺序取全部。
type Result[T any] struct {
	items []T
}

func NewResult[T any](items []T) Result[T] {
	return Result[T]{items: items}
}

func (r Result[T]) Single() (T, bool) {
	if len(r.items) == 1 {
		return r.items[0], true
	}
	var zero T
	return zero, false
}

func (r Result[T]) All() []T {
	return r.items
}

func (r Result[T]) Len() int {
	return len(r.items)
}

// MarshalJSON 单条输出裸对象，否则输出数组。
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if one, ok := r.Single(); ok {
		return json.Marshal(one)
	}
	if r.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.items)
}

// Normalize 解析响应体并做单条折叠。
func Normalize(raw []byte) (Result[MetricRecord], error) {
	records, err := decodeRecords(raw)
	if err != nil {
		return Result[MetricRecord]{}, err
	}
	return NewResult(records), nil
}

// decodeRecords 远端即使只查一个目标也会返回单元素数组，非数组一律视为解析失败。
func decodeRecords(raw []byte) ([]MetricRecord, error) {
	var records []MetricRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &DecodingError{Err: err}
	}
	if records == nil {
		// "null"
		return nil, &DecodingError{Err: errors.New("response is not an array")}
	}
	for i, rec := range records {
		if rec == nil {
			return nil, &DecodingError{Err: fmt.Errorf("element %d is not an object", i)}
		}
	}
	return records, nil
}

// DomainAuthorities 从每条记录取出 pda。任一条缺失则整体失败。
func DomainAuthorities(records []MetricRecord) (Result[float64], error) {
	return project(records, "pda")
}

func project(records []MetricRecord, key string) (Result[float64], error) {
	values := make([]float64, 0, len(records))
	for i, rec := range records {
		v, ok := rec.Float(key)
		if !ok {
			return Result[float64]{}, &DecodingError{Err: fmt.Errorf("element %d: missing numeric %q", i, key)}
		}
		values = append(values, v)
	}
	return NewResult(values), nil
}
