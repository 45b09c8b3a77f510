package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/iabetor/aeronews/internal/config"
	"github.com/iabetor/aeronews/internal/logger"
	"github.com/iabetor/aeronews/internal/server"
	"github.com/iabetor/aeronews/internal/subscriber"
)

func main() {
	configPath := flag.String("config", "configs/aeronews.yaml", "配置文件路径")
	addr := flag.String("addr", "", "监听地址，覆盖配置中的 server.addr")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *addr == "" {
		*addr = cfg.Server.Addr
	}
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := subscriber.Open(cfg.Subscribers.File, subscriber.WithResubscribe(cfg.Subscribers.AllowResubscribe))
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开订阅者存储失败: %v\n", err)
		os.Exit(1)
	}
	logger.Infof("[main] 订阅者文件: %s，活跃订阅者 %d 人", store.Path(), store.Count())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	if err := server.New(store).Run(ctx, *addr); err != nil {
		logger.Errorf("[main] 订阅服务运行出错: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("[main] 订阅服务已停止")
}
