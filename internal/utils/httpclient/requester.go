package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// ErrRetriesExhausted 重试次数用尽
var ErrRetriesExhausted = errors.New("请求重试次数已用尽")

// StatusError 非2xx响应
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s 返回状态码 %d", e.Method, e.URL, e.Code)
}

// Retryable 5xx 与 429 视为临时故障，FailFast 模式下其余状态码不重试
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// RetryPolicy 重试策略：共尝试 Attempts 次，第 n 次失败后等待 Backoff*2^n
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Requester 带全局并发闸门和重试的请求器，所有渠道共用同一个闸门
type Requester struct {
	client   *http.Client
	gate     *semaphore.Weighted
	policy   RetryPolicy
	logger   *logrus.Logger
	failFast bool
}

// NewGate 创建并发闸门
func NewGate(n int64) *semaphore.Weighted {
	if n <= 0 {
		n = 5
	}
	return semaphore.NewWeighted(n)
}

func NewRequester(client *http.Client, gate *semaphore.Weighted, policy RetryPolicy, logger *logrus.Logger) *Requester {
	if policy.Attempts <= 0 {
		policy.Attempts = 3
	}
	if gate == nil {
		gate = NewGate(5)
	}
	return &Requester{client: client, gate: gate, policy: policy, logger: logger}
}

// FailFast 返回共用客户端与闸门的副本，4xx（429除外）不再重试直接返回 *StatusError
func (r *Requester) FailFast() *Requester {
	cp := *r
	cp.failFast = true
	return &cp
}

// GetJSON GET 并解析JSON响应
func (r *Requester) GetJSON(ctx context.Context, url string, out interface{}) error {
	body, err := r.Do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return err
	}
	return decode(body, url, out)
}

// PostJSON POST JSON 并解析JSON响应
func (r *Requester) PostJSON(ctx context.Context, url string, payload interface{}, header http.Header, out interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json;charset=UTF-8")
	}
	body, err := r.Do(ctx, http.MethodPost, url, b, header)
	if err != nil {
		return err
	}
	return decode(body, url, out)
}

func decode(body []byte, url string, out interface{}) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析 %s 响应失败: %w", url, err)
	}
	return nil
}

// Do 发送请求并返回响应体。每次尝试前获取闸门，等待退避时不占用闸门。
// 网络错误与非2xx都会重试；FailFast 模式下不可重试的状态码直接返回 *StatusError。
// 重试用尽的错误同时匹配 ErrRetriesExhausted 和最后一次的 *StatusError。
func (r *Requester) Do(ctx context.Context, method, url string, body []byte, header http.Header) ([]byte, error) {
	if _, err := http.NewRequestWithContext(ctx, method, url, nil); err != nil {
		return nil, fmt.Errorf("构建请求失败: %w", err)
	}
	var lastErr error
	for attempt := 0; attempt < r.policy.Attempts; attempt++ {
		if attempt > 0 {
			wait := r.policy.Backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		data, err := r.once(ctx, method, url, body, header)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var se *StatusError
		if r.failFast && errors.As(err, &se) && !se.Retryable() {
			return nil, err
		}
		lastErr = err
		r.logger.WithError(err).WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt + 1,
			"total":   r.policy.Attempts,
		}).Warn("请求失败，准备重试")
	}
	r.logger.WithError(lastErr).WithField("url", url).Error("请求重试次数已用尽")
	return nil, fmt.Errorf("%w: %s %s: %w", ErrRetriesExhausted, method, url, lastErr)
}

func (r *Requester) once(ctx context.Context, method, url string, body []byte, header http.Header) ([]byte, error) {
	if err := r.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.gate.Release(1)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			r.logger.WithError(err).Debug("关闭响应体失败")
		}
	}()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Method: method, URL: url, Code: resp.StatusCode}
	}
	return readBody(resp)
}
