package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/builder"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/logger"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/scrape"
)

var (
	sourceFile = flag.String("source", "twitter_data.py", "the source data file")
	outputCSV  = flag.String("o", "twitter_data.csv", "the output csv file")
	imagesDir  = flag.String("images", "downloaded_images", "the images directory")
	startFrom  = flag.Int("start", 1, "resume from this id")
)

func main() {
	flag.Parse()

	logger.Infof("[Builder] 开始构建推文图片数据集...")

	// 启动无头浏览器
	renderer, err := scrape.NewRenderer()
	if err != nil {
		logger.Fatalf("[Builder] 启动浏览器失败, %s", err)
	}
	// 任意退出路径都要释放浏览器进程
	defer renderer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 收到退出信号时中断处理，进度已逐条落盘，可直接续跑
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		logger.Infof("[Builder] 收到退出信号，正在停止...")
		cancel()
	}()

	b := builder.NewBuilder(renderer, scrape.NewDownloader(nil))
	if err := b.Run(ctx, *sourceFile, *outputCSV, *imagesDir, *startFrom); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Infof("[Builder] 构建已中断，结果保存在 %s", *outputCSV)
			return
		}
		logger.Errorf("[Builder] 构建失败: %v", err)
		renderer.Close()
		os.Exit(1)
	}

	logger.Infof("[Builder] 构建完成，结果保存在 %s", *outputCSV)
}
