package svc

import (
	"crypto/tls"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/bsky"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/config"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/dataset"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/filter"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/logger"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/replied"

	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config         *config.Config
	TransportProxy *http.Transport
	BskyClient     *bsky.Client
	ContentFilter  *filter.ContentFilter
	RepliedStore   *replied.Store
	Dataset        *dataset.Dataset
}

func NewServiceContext(c *config.Config) *ServiceContext {
	// 创建SOCKS5代理
	var transportProxy *http.Transport
	if c.Sock5Proxy.Enable {
		socks5Proxy := fmt.Sprintf("%s:%d", c.Sock5Proxy.Host, c.Sock5Proxy.Port)
		dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
		if err != nil {
			logger.Fatalf("创建SOCKS5代理失败, %v", err)
		}

		transportProxy = &http.Transport{
			Dial:            dialer.Dial,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	// 创建内容检查器
	contentFilter, err := filter.New()
	if err != nil {
		logger.Fatalf("创建内容检查器失败, %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	svcCtx := &ServiceContext{
		Config:         c,
		TransportProxy: transportProxy,
		BskyClient:     bsky.NewClient(transportProxy),
		ContentFilter:  contentFilter,
		RepliedStore:   replied.Load(c.Bot.RepliedPostsFile),
		Dataset:        dataset.New(c.Bot.DatasetFile, c.Bot.DatasetMaxID, rng),
	}
	return svcCtx
}
