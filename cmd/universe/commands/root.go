package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "universe",
	Short: "TradableStocksUS - 미국 거래 가능 종목 유니버스",
	Long: `TradableStocksUS Unified CLI

마스크 기반 파이프라인 표현식으로 세션별 거래 가능 종목을 산출합니다.
보통주 → 주요 상장 → 200일 평균 거래대금 → 가격 → 종가 결측 → 거래량 → (선택) 시가총액.

Usage:
  go run ./cmd/universe [command]

Examples:
  go run ./cmd/universe universe explain
  go run ./cmd/universe universe build --date 2024-01-02 --save
  go run ./cmd/universe api
  go run ./cmd/universe scheduler start
  go run ./cmd/universe test-db --migrate`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "", "strategy YAML (default: STRATEGY_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
