package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tradable-universe/internal/api"
	"github.com/wonny/tradable-universe/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 유니버스 조회 엔드포인트 제공
- 유니버스 생성 트리거 제공 (rate limit 적용)

Endpoints:
  GET  /health                      - Health check
  GET  /api/universe                - 최신 스냅샷 조회
  GET  /api/universe/{date}         - 날짜별 스냅샷 조회
  GET  /api/universe/expression     - 필터 표현식 트리
  POST /api/universe/build          - 유니버스 생성 (선택 저장)

Example:
  go run ./cmd/universe api
  go run ./cmd/universe api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== TradableStocksUS API Server ===")

	// 1. Config, logger, DB, Redis
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	cfg, log := d.cfg, d.log

	// Override port if flag is set
	if apiPort != "" {
		cfg.Port = apiPort
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"env":         cfg.Env,
		"redis":       d.redis.Enabled(),
		"market_cap":  d.criteria.MarketCapFilter,
		"build_rps":   cfg.API.BuildRateLimit,
		"build_burst": cfg.API.BuildBurst,
	}).Info("Initializing API server")

	// 2. Create handler
	universeHandler, err := handlers.NewUniverseHandler(d.loader, d.criteria, d.repo, d.cache, cfg.API.RequestTimeout, log)
	if err != nil {
		return fmt.Errorf("create universe handler: %w", err)
	}

	// 3. Create router
	router := api.NewRouter(universeHandler, api.NewBuildLimiter(cfg.API.BuildRateLimit, cfg.API.BuildBurst), log)

	// 4. Create server
	server := api.New(cfg, log, router)

	// 5. Start server with graceful shutdown
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /api/universe")
	fmt.Println("  GET  /api/universe/{date}")
	fmt.Println("  GET  /api/universe/expression")
	fmt.Println("  POST /api/universe/build")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		// Start는 Shutdown 전까지 반환하지 않음
		if err != nil {
			log.WithError(err).Error("Failed to start server")
			return err
		}
		return nil
	case <-quit:
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
