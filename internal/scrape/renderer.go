package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/logger"
)

const (
	renderTimeout   = 30 * time.Second
	renderStableDur = 500 * time.Millisecond
	minImageArea    = 10000 // 有效图片的最小渲染面积（像素）
)

// ErrNoImage 页面上未找到符合条件的图片
var ErrNoImage = errors.New("未找到图片")

// imageSelectors 按优先级排列的图片元素选择器
var imageSelectors = []string{
	`img[alt="Image"]`,
	`div[data-testid="tweetPhoto"] img`,
	`div[data-testid="tweet"] img`,
	`article img`,
	`div[role="article"] img`,
}

// Renderer 通过无头Chromium渲染推文页面并解析主图地址。
// 用 NewRenderer 创建，结束时必须调用 Close 释放浏览器进程。
type Renderer struct {
	browser *rod.Browser
}

// NewRenderer 启动无头浏览器。Chrome/Chromium 无法启动时返回错误。
func NewRenderer() (*Renderer, error) {
	u, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("启动无头浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("连接无头浏览器失败: %w", err)
	}

	return &Renderer{browser: browser}, nil
}

// TweetImageURL 渲染推文页面并返回第一张有效图片的地址。
// 头像类图片和渲染面积过小的图片会被跳过；无法取得尺寸时直接接受。
func (r *Renderer) TweetImageURL(ctx context.Context, tweetURL string) (string, error) {
	page, err := stealth.Page(r.browser)
	if err != nil {
		return "", fmt.Errorf("创建页面失败: %w", err)
	}
	defer page.Close()

	renderCtx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()
	page = page.Context(renderCtx)

	if err := page.Navigate(tweetURL); err != nil {
		return "", fmt.Errorf("打开页面 %s 失败: %w", tweetURL, err)
	}

	// 等待DOM稳定后再查找图片元素
	_ = page.WaitStable(renderStableDur)

	for _, selector := range imageSelectors {
		elements, err := page.Elements(selector)
		if err != nil {
			logger.Debugf("[Scrape] 选择器 %s 查找失败: %v", selector, err)
			continue
		}

		for _, el := range elements {
			src, err := el.Attribute("src")
			if err != nil || src == nil || *src == "" {
				continue
			}
			if isProfileImage(*src) {
				continue
			}
			if !hasEnoughArea(el) {
				continue
			}
			return normalizeImageURL(*src), nil
		}
	}

	return "", ErrNoImage
}

// Close 关闭无头浏览器进程
func (r *Renderer) Close() {
	_ = r.browser.Close()
}

// isProfileImage 判断地址是否指向头像类图片
func isProfileImage(src string) bool {
	lower := strings.ToLower(src)
	return strings.Contains(lower, "profile") || strings.Contains(lower, "avatar")
}

// hasEnoughArea 判断元素渲染面积是否足够。尺寸取不到时视为通过。
func hasEnoughArea(el *rod.Element) bool {
	width, err := el.Property("width")
	if err != nil {
		return true
	}
	height, err := el.Property("height")
	if err != nil {
		return true
	}
	w, h := width.Int(), height.Int()
	if w == 0 || h == 0 {
		return true
	}
	return w*h > minImageArea
}

// normalizeImageURL 把图片地址改写为请求最大可用规格
func normalizeImageURL(imageURL string) string {
	if idx := strings.Index(imageURL, "?format="); idx >= 0 {
		return imageURL[:idx] + "?format=jpg&name=large"
	}
	return imageURL
}
