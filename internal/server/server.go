// Package server 提供订阅/退订表单页面、管理页面和 JSON API。
package server

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iabetor/aeronews/internal/logger"
	"github.com/iabetor/aeronews/internal/subscriber"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// SubscriberStore 是 HTTP 层需要的订阅者操作，由 *subscriber.Store 实现。
type SubscriberStore interface {
	Subscribe(email, name string) (subscriber.Subscriber, error)
	Unsubscribe(email, token string) (subscriber.Subscriber, error)
	Lookup(token string) (subscriber.Subscriber, bool)
	All() []subscriber.Subscriber
	Export(includeInactive bool) []subscriber.Subscriber
	Stats() subscriber.Stats
}

// Server 订阅表单 HTTP 服务。
type Server struct {
	store  SubscriberStore
	engine *gin.Engine
}

// New 创建服务并注册路由。gin 的运行模式由调用方设置。
func New(store SubscriberStore) *Server {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger.Z))
	engine.SetHTMLTemplate(template.Must(template.New("pages").Funcs(templateFuncs).Parse(pagesTpl)))

	s := &Server{store: store, engine: engine}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleIndex)
	s.engine.POST("/subscribe", s.handleSubscribe)
	s.engine.GET("/unsubscribe", s.handleUnsubscribeForm)
	s.engine.POST("/unsubscribe", s.handleUnsubscribe)
	s.engine.GET("/admin", s.handleAdmin)

	api := s.engine.Group("/api")
	api.GET("/subscribers", s.handleAPISubscribers)
	api.GET("/stats", s.handleAPIStats)
}

// Handler 返回 HTTP handler。
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听 addr，ctx 取消时优雅关闭。
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[server] 订阅服务已启动: %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("[server] 正在关闭订阅服务")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger 用 zap 记录每个请求。
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("[server] request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
