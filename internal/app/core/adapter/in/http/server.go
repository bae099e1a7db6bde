package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
)

// Server 封裝 fiber App 與路由設定
type Server struct {
	app  *fiber.App
	addr string
}

// NewServer 建立 HTTP Server
//
// 參數:
//
//	core: 核心業務邏輯層
//	validIDs: 合法帳戶集合 (啟動時自後端載入)
//	log: 結構化 Logger
//	addr: 監聽地址 (e.g. ":8080")
func NewServer(core *usecase.CoreUseCase, validIDs map[int64]struct{}, log *zap.Logger, addr string) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "go-credit-ledger",
		DisableStartupMessage: true,
	})

	app.Use(requestLogger(log))

	handler := NewHandler(core, validIDs, log)
	app.Get("/accounts/:id/statement", handler.GetStatement)
	app.Post("/accounts/:id/transactions", handler.PostTransaction)

	return &Server{
		app:  app,
		addr: addr,
	}
}

// App 回傳底層 fiber App (測試用)
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen 啟動監聽，阻塞直到伺服器關閉
func (s *Server) Listen() error {
	return s.app.Listen(s.addr)
}

// Shutdown 優雅關閉，等待 in-flight 請求完成
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// requestLogger 記錄每個請求的存取日誌
func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		log.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}
