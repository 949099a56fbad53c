package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/bot"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/config"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/logger"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/svc"
)

var envFile = flag.String("f", ".env", "the env file")

func main() {
	flag.Parse()

	// 读取配置
	c, err := config.Load(*envFile)
	if err != nil {
		logger.Fatalf("读取配置失败, %s", err)
	}

	// 创建服务上下文
	svcCtx := svc.NewServiceContext(c)

	// 登录Bluesky账号
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svcCtx.BskyClient.Login(ctx, c.Bluesky.Username, c.Bluesky.Password); err != nil {
		logger.Fatalf("[Bsky] 账号登录失败, %s", err)
	}
	logger.Infof("[Bsky] 账号 <%s> 登录成功", svcCtx.BskyClient.Handle())
	logger.Infof("[Bot] 已加载 %d 条已回复记录", svcCtx.RepliedStore.Len())

	// 创建并启动机器人主循环
	botInstance := bot.NewBot(
		&c.Bot,
		c.Bluesky.ListURI,
		svcCtx.BskyClient,
		svcCtx.Dataset,
		svcCtx.ContentFilter,
		svcCtx.RepliedStore,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		botInstance.Run(ctx)
	}()

	// 等待程序退出
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	// 优雅关闭
	logger.Infof("正在关闭服务...")
	cancel()
	<-done
	logger.Infof("服务已停止")
}
