package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// Transport 包装带连接池的 HTTP 客户端。
// 一次批量调用内所有请求复用同一个 Transport，批量结束后关闭连接。
type Transport struct {
	client *http.Client
	inner  *http.Transport
}

// newTransport 创建批量调用使用的传输层。
// 连接超时固定 5s，整体超时取配置的读超时，连接池规模跟随并发数。
func newTransport(concurrent int, timeout time.Duration, systemProxy bool) *Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	inner := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxConnsPerHost:       concurrent * 2,
		MaxIdleConns:          concurrent,
		MaxIdleConnsPerHost:   concurrent,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// 允许自签名证书的中转端点
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	if systemProxy {
		inner.Proxy = http.ProxyFromEnvironment
		// ALL_PROXY 的 SOCKS5 代理走自定义拨号器
		if envDialer := proxy.FromEnvironment(); envDialer != proxy.Direct {
			if contextDialer, ok := envDialer.(proxy.ContextDialer); ok {
				inner.DialContext = contextDialer.DialContext
			} else {
				inner.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
					return envDialer.Dial(network, addr)
				}
			}
		}
	}

	return &Transport{
		client: &http.Client{
			Transport: inner,
			Timeout:   timeout,
		},
		inner: inner,
	}
}

// PostJSON 发送一次 JSON POST 请求，调用方负责关闭响应体。
func (t *Transport) PostJSON(ctx context.Context, url string, header http.Header, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = header.Clone()
	return t.client.Do(req)
}

// Close 关闭池中的空闲连接。
func (t *Transport) Close() {
	t.inner.CloseIdleConnections()
}
