package mozscape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const DefaultEndpoint = "http://lsapi.seomoz.com/linkscape/url-metrics/"

// Doer 就是 *http.Client 的 Do，连接池、TLS、超时都由它负责。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client 只持有不可变的配置，可以被多个 goroutine 同时使用。
type Client struct {
	endpoint string
	creds    Credentials
	signer   *Signer
	http     Doer
}

// NewClient 的 doer 必须显式传入，不做隐式兜底。
func NewClient(endpoint string, creds Credentials, doer Doer) (*Client, error) {
	if doer == nil {
		return nil, ErrNilTransport
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("mozscape: invalid endpoint: %w", err)
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		creds:    creds,
		signer:   NewSigner(creds),
		http:     doer,
	}, nil
}

// AccessID 用于按账号做配额等。
func (c *Client) AccessID() string {
	return c.creds.AccessID
}

// FetchMetrics 按目标类型选择请求形态：
//   - SingleTarget: GET {endpoint}/{target}
//   - BatchTargets: POST {endpoint}/，body 为 JSON 字符串数组
//
// 两者都带 Cols/AccessID/Expires/Signature 查询参数。
// 传输层错误原样包装返回，不重试；非 2xx 不做特殊处理，交给解析。
func (c *Client) FetchMetrics(ctx context.Context, target Target, cols Column) ([]MetricRecord, error) {
	var (
		method string
		reqURL string
		body   io.Reader
	)
	switch t := target.(type) {
	case SingleTarget:
		method = http.MethodGet
		reqURL = c.endpoint + "/" + url.PathEscape(string(t))
	case BatchTargets:
		if len(t) == 0 {
			return nil, ErrEmptyBatch
		}
		payload, err := json.Marshal([]string(t))
		if err != nil {
			return nil, fmt.Errorf("marshal targets: %w", err)
		}
		method = http.MethodPost
		// POST 地址带结尾斜杠，和官方 URL_METRICS 一致
		reqURL = c.endpoint + "/"
		body = bytes.NewReader(payload)
	default:
		return nil, ErrNoTarget
	}

	// 签名必须紧贴着请求生成
	sig, err := c.signer.Sign()
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("Cols", cols.String())
	query.Set("AccessID", c.creds.AccessID)
	query.Set("Expires", strconv.FormatInt(sig.Expires, 10))
	query.Set("Signature", sig.Value)

	req, err := http.NewRequestWithContext(ctx, method, reqURL+"?"+query.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	slog.Debug("mozscape request", "method", method, "targets", Len(target), "cols", uint64(cols))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	records, err := decodeRecords(raw)
	if err != nil {
		if de, ok := err.(*DecodingError); ok {
			de.StatusCode = resp.StatusCode
		}
		slog.Warn("mozscape response not decodable", "status", resp.StatusCode, "bytes", len(raw))
		return nil, err
	}
	return records, nil
}
