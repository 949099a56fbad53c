package bot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/bsky"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/config"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/filter"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/logger"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/replied"
)

const (
	feedLimit     = 5                // 每轮拉取的帖子数上限
	replyAltText  = "A cute dog"     // 回复图片的固定alt文本
	pacingDelay   = 2 * time.Second  // 成功回复后的间隔，避免连续请求
	recoveryDelay = 30 * time.Second // 主循环异常后的恢复等待
)

// feedFetcher 列表流拉取接口，便于测试
type feedFetcher interface {
	FetchListFeed(ctx context.Context, listURI string, limit int) ([]bsky.FeedItem, error)
}

// replyDispatcher 回复发送接口，便于测试
type replyDispatcher interface {
	SendImageReply(ctx context.Context, text string, image []byte, alt string, reply *bsky.ReplyRef) error
}

// contentPicker 素材选取接口，便于测试
type contentPicker interface {
	PickRandom() (imagePath, replyText string, ok bool)
}

// Bot 回复机器人会话：持有列表流客户端、内容检查器、已回复集合和素材数据集。
type Bot struct {
	cfg        *config.Bot
	listURI    string
	fetcher    feedFetcher
	dispatcher replyDispatcher
	picker     contentPicker
	filter     *filter.ContentFilter
	replied    *replied.Store
}

func NewBot(
	cfg *config.Bot,
	listURI string,
	client *bsky.Client,
	picker contentPicker,
	contentFilter *filter.ContentFilter,
	repliedStore *replied.Store,
) *Bot {
	return &Bot{
		cfg:        cfg,
		listURI:    listURI,
		fetcher:    client,
		dispatcher: client,
		picker:     picker,
		filter:     contentFilter,
		replied:    repliedStore,
	}
}

// ShouldReply 判断是否应回复该帖子。
// 无法取到帖子文本时放行（fail open），这是刻意的策略：读不到内容不应拦住回复。
func (b *Bot) ShouldReply(item *bsky.FeedItem) (bool, string) {
	if item.Post.Record == nil || item.Post.Record.Text == "" {
		return true, "无文本内容"
	}

	sensitive, topics := b.filter.Check(item.Post.Record.Text)
	if sensitive {
		return false, fmt.Sprintf("帖子包含敏感话题: %s", strings.Join(topics, ", "))
	}
	return true, "内容适合回复"
}

// logPostDetails 回复前记录帖子详情，便于人工排查
func (b *Bot) logPostDetails(item *bsky.FeedItem) {
	text := ""
	if item.Post.Record != nil {
		text = item.Post.Record.Text
	}
	if len(text) > 100 {
		text = text[:100] + "..."
	}

	logger.Infof("[Bot] 帖子分析: 作者 %s (%s), URI: %s", item.Post.Author.DisplayName, item.Post.Author.Handle, item.Post.URI)
	logger.Infof("[Bot] 内容: %s", text)
}

// replyAnchor 确定回复锚点：帖子自带会话上下文时沿用其根帖，
// 否则视为顶层帖子，parent 和 root 都指向帖子自身。
func replyAnchor(item *bsky.FeedItem) *bsky.ReplyRef {
	self := bsky.StrongRef{URI: item.Post.URI, CID: item.Post.CID}
	if item.Reply != nil {
		return &bsky.ReplyRef{
			Root:   bsky.StrongRef{URI: item.Reply.Root.URI, CID: item.Reply.Root.CID},
			Parent: self,
		}
	}
	return &bsky.ReplyRef{Root: self, Parent: self}
}

// TryReply 对单个帖子尝试回复，返回是否实际发送。
// 守卫顺序：内容检查 → 去重 → 图片读取 → 发送；
// 只有发送成功后才把URI记入已回复集合并写穿持久化，
// 发送失败不记录，下一轮仍有机会重试（代价是成功信号丢失时可能重复发送）。
func (b *Bot) TryReply(ctx context.Context, item *bsky.FeedItem, replyText, imagePath string) bool {
	postURI := item.Post.URI

	shouldReply, reason := b.ShouldReply(item)
	if !shouldReply {
		logger.Infof("[Bot] 跳过帖子 %s: %s", postURI, reason)
		return false
	}

	if b.replied.Contains(postURI) {
		logger.Debugf("[Bot] 已回复过帖子: %s", postURI)
		return false
	}

	b.logPostDetails(item)
	logger.Infof("[Bot] 是否回复: %v - %s", shouldReply, reason)

	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Errorf("[Bot] 图片文件不存在: %s", imagePath)
		} else {
			logger.Errorf("[Bot] 读取图片文件失败: %v", err)
		}
		return false
	}

	reply := replyAnchor(item)
	if err := b.dispatcher.SendImageReply(ctx, replyText, imgData, replyAltText, reply); err != nil {
		logger.Errorf("[Bot] 发送回复失败 (%s): %v", postURI, err)
		return false
	}

	if err := b.replied.Add(postURI); err != nil {
		logger.Errorf("[Bot] 记录已回复集合失败 (%s): %v", postURI, err)
	}
	logger.Infof("[Bot] 回复成功: %s", postURI)
	return true
}

// runCycle 执行一轮检查：拉取列表流并对每条帖子尝试回复
func (b *Bot) runCycle(ctx context.Context) {
	items, err := b.fetcher.FetchListFeed(ctx, b.listURI, feedLimit)
	if err != nil {
		// 拉取失败按本轮无帖子处理，正常进入下一轮，不走恢复等待
		logger.Warnf("[Bot] 拉取列表流失败: %v", err)
		return
	}

	newReplies := 0
	for i := range items {
		imgPath, replyText, ok := b.picker.PickRandom()
		if !ok {
			logger.Warnf("[Bot] 未找到可用的回复素材")
			continue
		}

		if b.TryReply(ctx, &items[i], replyText, imgPath) {
			newReplies++
			select {
			case <-ctx.Done():
				return
			case <-time.After(pacingDelay):
			}
		}
	}

	if newReplies > 0 {
		logger.Infof("[Bot] 本轮回复了 %d 条新帖子", newReplies)
	} else {
		logger.Infof("[Bot] 本轮没有需要回复的新帖子")
	}
}

// Run 主循环：持续轮询直到 ctx 取消。
// 单轮内的意外错误只记录并等待固定恢复时间，循环永不因错误退出。
func (b *Bot) Run(ctx context.Context) {
	interval := time.Duration(b.cfg.CheckInterval) * time.Second
	logger.Infof("[Bot] 机器人已启动，每 %d 秒检查一次新帖子", b.cfg.CheckInterval)
	logger.Infof("[Bot] 内容过滤已启用，将检查敏感话题")

	for {
		sleep := interval
		if err := b.safeCycle(ctx); err != nil {
			logger.Errorf("[Bot] 主循环出错: %v，%v 后重试", err, recoveryDelay)
			sleep = recoveryDelay
		}

		select {
		case <-ctx.Done():
			logger.Infof("[Bot] 主循环已退出")
			return
		case <-time.After(sleep):
		}
	}
}

// safeCycle 捕获单轮内的panic，转换为错误交给恢复路径
func (b *Bot) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("发生意外异常: %v", r)
		}
	}()
	b.runCycle(ctx)
	return nil
}
