package httpclient

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Options 单个外部服务的连接参数
type Options struct {
	Timeout int    // 秒，<=0 时为15
	Proxy   string // 为空不走代理
}

// New 按连接参数创建请求器，gate 与 policy 由各调用方共享
func New(opts Options, gate *semaphore.Weighted, policy RetryPolicy, logger *logrus.Logger) *Requester {
	return NewRequester(newHTTPClient(opts, logger), gate, policy, logger)
}

func newHTTPClient(opts Options, logger *logrus.Logger) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		// 由 readBody 解压
		DisableCompression: true,
	}
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			logger.WithError(err).WithField("proxy", opts.Proxy).Warn("代理地址解析失败，将不使用代理")
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
			logger.WithField("proxy", opts.Proxy).Info("HTTP客户端已配置代理")
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15
	}
	return &http.Client{Timeout: time.Duration(timeout) * time.Second, Transport: transport}
}

// readBody 读取响应体，Content-Encoding 为 gzip 时解压
func readBody(resp *http.Response) ([]byte, error) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return io.ReadAll(resp.Body)
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gzip解压失败: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
