package builder

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/dataset"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/logger"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/retry"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/scrape"
)

// 构建失败时写入“本地图片路径”列的占位串，属于数据契约的一部分，保持英文原值
const (
	sentinelNoImage        = "No image found"
	sentinelDownloadFailed = "Failed to download"
)

const (
	minEntryDelay = 2 * time.Second // 相邻条目之间的最小随机延迟
	maxEntryDelay = 5 * time.Second
)

// sourcePattern 源文件中 (id, url, caption) 三元组的固定文本模式
var sourcePattern = regexp.MustCompile(`elif\s*\(x\s*==\s*(\d+)\):\s*mediaLink\s*=\s*"([^"]+)"\s*reply_text\s*=\s*"([^"]+)"`)

// Entry 源文件中解析出的一条待处理记录
type Entry struct {
	ID      int
	URL     string
	Caption string
}

// ParseSource 从源文件提取 (id, url, caption) 三元组，按ID升序返回
func ParseSource(path string) ([]Entry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取源文件 %s 失败: %w", path, err)
	}

	matches := sourcePattern.FindAllStringSubmatch(string(content), -1)
	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			ID:      id,
			URL:     strings.TrimSpace(m[2]),
			Caption: m[3],
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// loadProcessedIDs 从已有的输出CSV读取已处理的ID集合，文件不存在时返回空集合
func loadProcessedIDs(csvPath string) (map[int]struct{}, error) {
	processed := make(map[int]struct{})

	file, err := os.Open(csvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return processed, nil
		}
		return nil, fmt.Errorf("打开输出文件 %s 失败: %w", csvPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	// 跳过表头
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return processed, nil
		}
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取已处理记录失败: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		if id, err := strconv.Atoi(record[0]); err == nil {
			processed[id] = struct{}{}
		}
	}
	return processed, nil
}

// imageResolver 推文图片地址解析接口，便于测试
type imageResolver interface {
	TweetImageURL(ctx context.Context, tweetURL string) (string, error)
}

// imageDownloader 图片下载接口，便于测试
type imageDownloader interface {
	Fetch(ctx context.Context, imageURL string) ([]byte, error)
}

// Builder 数据集构建器：解析源文件、抓取推文图片并写出可续跑的CSV。
// 页面抓取和限流下载各用一套独立的退避策略。
type Builder struct {
	resolver       imageResolver
	downloader     imageDownloader
	scrapePolicy   retry.Policy
	downloadPolicy retry.Policy
	entryDelayMin  time.Duration
	entryDelayMax  time.Duration
}

func NewBuilder(resolver imageResolver, downloader imageDownloader) *Builder {
	policy := retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		MaxDelay:    300 * time.Second,
		Jitter:      time.Second,
	}
	return &Builder{
		resolver:       resolver,
		downloader:     downloader,
		scrapePolicy:   policy,
		downloadPolicy: policy,
		entryDelayMin:  minEntryDelay,
		entryDelayMax:  maxEntryDelay,
	}
}

// entryDelay 相邻条目之间的随机延迟，降低请求频率和被检测风险
func (b *Builder) entryDelay() time.Duration {
	if b.entryDelayMax <= b.entryDelayMin {
		return b.entryDelayMin
	}
	return b.entryDelayMin + time.Duration(rand.Int63n(int64(b.entryDelayMax-b.entryDelayMin)))
}

// Run 执行构建。已处理的ID和小于 startFrom 的ID会被跳过，
// 每条记录处理完立即落盘，中断后可从上次进度续跑。
func (b *Builder) Run(ctx context.Context, sourceFile, outputCSV, imagesDir string, startFrom int) error {
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return fmt.Errorf("创建图片目录失败: %w", err)
	}

	processed, err := loadProcessedIDs(outputCSV)
	if err != nil {
		return err
	}

	entries, err := ParseSource(sourceFile)
	if err != nil {
		return err
	}

	pending := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID < startFrom {
			continue
		}
		if _, ok := processed[e.ID]; ok {
			continue
		}
		pending = append(pending, e)
	}

	logger.Infof("[Builder] 从ID %d 开始，共 %d 条待处理", startFrom, len(pending))

	_, statErr := os.Stat(outputCSV)
	isNew := os.IsNotExist(statErr)

	file, err := os.OpenFile(outputCSV, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("打开输出文件失败: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if isNew {
		if err := writer.Write(dataset.Header); err != nil {
			return fmt.Errorf("写入表头失败: %w", err)
		}
		writer.Flush()
	}

	for index, e := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logger.Infof("[Builder] 处理条目 %d (%d/%d)...", e.ID, index+1, len(pending))
		imagePath := b.processEntry(ctx, e, imagesDir)

		// 取消时不写占位行，留给下次续跑
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := writer.Write([]string{strconv.Itoa(e.ID), e.URL, imagePath, e.Caption}); err != nil {
			return fmt.Errorf("写入记录失败 (ID=%d): %w", e.ID, err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("刷新CSV失败 (ID=%d): %w", e.ID, err)
		}
		// 立即落盘，保证任意时刻中断后可安全续跑
		if err := file.Sync(); err != nil {
			return fmt.Errorf("同步输出文件失败: %w", err)
		}

		if delay := b.entryDelay(); index < len(pending)-1 && delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil
}

// processEntry 处理单条记录，返回本地图片路径或失败占位串
func (b *Builder) processEntry(ctx context.Context, e Entry, imagesDir string) string {
	var imageURL string
	err := b.scrapePolicy.Do(ctx, "解析推文图片", func(attempt int) error {
		logger.Debugf("[Builder] 第 %d 次尝试解析推文: %s", attempt+1, e.URL)
		resolved, rerr := b.resolver.TweetImageURL(ctx, e.URL)
		if rerr != nil {
			return rerr
		}
		imageURL = resolved
		return nil
	})
	if err != nil {
		logger.Warnf("[Builder] 条目 %d 未解析到图片: %v", e.ID, err)
		return sentinelNoImage
	}

	var data []byte
	err = b.downloadPolicy.Do(ctx, "下载图片", func(attempt int) error {
		fetched, ferr := b.downloader.Fetch(ctx, imageURL)
		if ferr != nil {
			// 仅限流和网络异常重试，其余状态码直接终止
			var statusErr *scrape.StatusError
			if errors.As(ferr, &statusErr) {
				return retry.Permanent(ferr)
			}
			return ferr
		}
		data = fetched
		return nil
	})
	if err != nil {
		logger.Warnf("[Builder] 条目 %d 下载图片失败: %v", e.ID, err)
		return sentinelDownloadFailed
	}

	savePath := filepath.Join(imagesDir, fmt.Sprintf("twitter_%s.jpg", tweetIDFromURL(e.URL)))
	if err := os.WriteFile(savePath, data, 0644); err != nil {
		logger.Errorf("[Builder] 条目 %d 保存图片失败: %v", e.ID, err)
		return fmt.Sprintf("Error: %s", err)
	}
	return savePath
}

// tweetIDFromURL 从推文URL中提取状态ID（status/ 之后的一段）
func tweetIDFromURL(tweetURL string) string {
	_, after, found := strings.Cut(tweetURL, "status/")
	if !found {
		return "unknown"
	}
	if idx := strings.IndexByte(after, '/'); idx >= 0 {
		after = after[:idx]
	}
	if idx := strings.IndexByte(after, '?'); idx >= 0 {
		after = after[:idx]
	}
	return after
}
