package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// ErrRateLimited 下载被限流（HTTP 429），调用方应退避后重试
var ErrRateLimited = errors.New("请求被限流")

// StatusError 非200且非限流的状态码，重试无意义
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("下载失败，状态码 %d", e.StatusCode)
}

// userAgents 轮换使用的浏览器标识
var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// Downloader 图片下载器。非200/429的状态码视为不可重试，交由调用方终止。
type Downloader struct {
	httpClient *http.Client
}

func NewDownloader(transport *http.Transport) *Downloader {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if transport != nil {
		httpClient.Transport = transport
	}
	return &Downloader{httpClient: httpClient}
}

// Fetch 下载图片字节。限流时返回 ErrRateLimited。
func (d *Downloader) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Referer", "https://twitter.com/")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("下载请求失败: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("读取响应失败: %w", err)
		}
		return data, nil
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("下载 %s: %w", imageURL, ErrRateLimited)
	default:
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
}
