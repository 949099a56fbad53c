package bsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultPDSHost = "https://bsky.social"
	publicAPIHost  = "https://public.api.bsky.app"
)

// StatusError 非成功HTTP状态。列表流拉取失败时调用方据此按“本轮无帖子”处理。
type StatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s 返回状态码 %d", e.Endpoint, e.StatusCode)
}

// Client Bluesky XRPC 客户端。先 Login 建立会话，之后的写操作携带访问令牌。
type Client struct {
	httpClient *http.Client
	pdsHost    string
	publicHost string
	accessJwt  string
	did        string
	handle     string
}

func NewClient(transport *http.Transport) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if transport != nil {
		httpClient.Transport = transport
	}
	return &Client{
		httpClient: httpClient,
		pdsHost:    defaultPDSHost,
		publicHost: publicAPIHost,
	}
}

// Handle 返回登录用户的 handle
func (c *Client) Handle() string {
	return c.handle
}

type createSessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	Did       string `json:"did"`
	Handle    string `json:"handle"`
}

// Login 使用账号凭据创建会话
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body, err := json.Marshal(map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		return err
	}

	endpoint := c.pdsHost + "/xrpc/com.atproto.server.createSession"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("创建会话请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: "createSession"}
	}

	var session createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return fmt.Errorf("解析会话响应失败: %w", err)
	}

	c.accessJwt = session.AccessJwt
	c.did = session.Did
	c.handle = session.Handle
	return nil
}

// FetchListFeed 从公开端点拉取列表流的最近帖子
func (c *Client) FetchListFeed(ctx context.Context, listURI string, limit int) ([]FeedItem, error) {
	params := url.Values{}
	params.Set("list", listURI)
	params.Set("limit", strconv.Itoa(limit))
	endpoint := c.publicHost + "/xrpc/app.bsky.feed.getListFeed?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("拉取列表流请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Endpoint: "getListFeed"}
	}

	var feedResp listFeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feedResp); err != nil {
		return nil, fmt.Errorf("解析列表流响应失败: %w", err)
	}
	return feedResp.Feed, nil
}

type uploadBlobResponse struct {
	Blob json.RawMessage `json:"blob"`
}

// uploadBlob 上传图片字节，返回服务端的blob描述（原样透传给 createRecord）
func (c *Client) uploadBlob(ctx context.Context, data []byte) (json.RawMessage, error) {
	endpoint := c.pdsHost + "/xrpc/com.atproto.repo.uploadBlob"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Authorization", "Bearer "+c.accessJwt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("上传图片请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("上传图片失败，状态码 %d: %s", resp.StatusCode, respBody)
	}

	var blobResp uploadBlobResponse
	if err := json.NewDecoder(resp.Body).Decode(&blobResp); err != nil {
		return nil, fmt.Errorf("解析上传响应失败: %w", err)
	}
	return blobResp.Blob, nil
}

type imageEmbed struct {
	Type   string       `json:"$type"`
	Images []embedImage `json:"images"`
}

type embedImage struct {
	Alt   string          `json:"alt"`
	Image json.RawMessage `json:"image"`
}

type postRecord struct {
	Type      string      `json:"$type"`
	Text      string      `json:"text"`
	CreatedAt string      `json:"createdAt"`
	Reply     *ReplyRef   `json:"reply,omitempty"`
	Embed     *imageEmbed `json:"embed,omitempty"`
}

type createRecordRequest struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     postRecord `json:"record"`
}

// SendImageReply 发送带图片的回复：先上传图片blob，再创建回复帖子记录
func (c *Client) SendImageReply(ctx context.Context, text string, image []byte, alt string, reply *ReplyRef) error {
	blob, err := c.uploadBlob(ctx, image)
	if err != nil {
		return err
	}

	record := createRecordRequest{
		Repo:       c.did,
		Collection: "app.bsky.feed.post",
		Record: postRecord{
			Type:      "app.bsky.feed.post",
			Text:      text,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Reply:     reply,
			Embed: &imageEmbed{
				Type:   "app.bsky.embed.images",
				Images: []embedImage{{Alt: alt, Image: blob}},
			},
		},
	}

	body, err := json.Marshal(record)
	if err != nil {
		return err
	}

	endpoint := c.pdsHost + "/xrpc/com.atproto.repo.createRecord"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessJwt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("创建回复请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("创建回复失败，状态码 %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
