package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tradable-universe/internal/contracts"
	"github.com/wonny/tradable-universe/internal/pipeline"
	"github.com/wonny/tradable-universe/internal/universe"
	"github.com/wonny/tradable-universe/pkg/config"
	"github.com/wonny/tradable-universe/pkg/redis"
)

const dateLayout = "2006-01-02"

// universeCmd represents the universe command
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "유니버스 생성/조회",
	Long: `TradableStocksUS 유니버스를 생성하거나 조회합니다.

Subcommands:
  build    - 세션(또는 기간)별 유니버스 생성
  explain  - 필터 표현식 트리 출력 (DB 불필요)
  show     - 저장된 스냅샷 조회
  list     - 저장된 스냅샷 날짜 목록

Example:
  go run ./cmd/universe universe build --date 2024-01-02 --save
  go run ./cmd/universe universe build --date 2024-01-02 --end 2024-01-31 --market-cap
  go run ./cmd/universe universe explain --market-cap
  go run ./cmd/universe universe explain --strategy config/strategy/tradable_stocks_us.yaml --json
  go run ./cmd/universe universe show 2024-01-02 --json`,
}

var (
	universeBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "유니버스 생성",
		RunE:  runUniverseBuild,
	}

	universeExplainCmd = &cobra.Command{
		Use:   "explain",
		Short: "필터 표현식 트리 출력",
		RunE:  runUniverseExplain,
	}

	universeShowCmd = &cobra.Command{
		Use:   "show [date]",
		Short: "저장된 스냅샷 조회 (기본: 최신)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUniverseShow,
	}

	universeListCmd = &cobra.Command{
		Use:   "list",
		Short: "저장된 스냅샷 날짜 목록",
		RunE:  runUniverseList,
	}
)

var (
	buildDate    string
	buildEnd     string
	buildSave    bool
	useMarketCap bool
	jsonOutput   bool
	listLimit    int
	showExcluded int
)

func init() {
	rootCmd.AddCommand(universeCmd)
	universeCmd.AddCommand(universeBuildCmd)
	universeCmd.AddCommand(universeExplainCmd)
	universeCmd.AddCommand(universeShowCmd)
	universeCmd.AddCommand(universeListCmd)

	universeBuildCmd.Flags().StringVar(&buildDate, "date", "", "세션 날짜 YYYY-MM-DD (기본: 오늘)")
	universeBuildCmd.Flags().StringVar(&buildEnd, "end", "", "기간 종료일 YYYY-MM-DD (지정 시 date~end 전체 세션)")
	universeBuildCmd.Flags().BoolVar(&buildSave, "save", false, "스냅샷 저장")

	for _, c := range []*cobra.Command{universeBuildCmd, universeExplainCmd} {
		c.Flags().BoolVar(&useMarketCap, "market-cap", false, "시가총액 필터 적용 (기본: 전략 설정)")
	}
	for _, c := range []*cobra.Command{universeBuildCmd, universeExplainCmd, universeShowCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "JSON 출력")
	}
	universeListCmd.Flags().IntVar(&listLimit, "limit", 20, "최대 개수")
	for _, c := range []*cobra.Command{universeBuildCmd, universeShowCmd} {
		c.Flags().IntVar(&showExcluded, "excluded", 0, "단계별 제외 종목 표시 (단계당 최대 N개, 0: 생략)")
	}
}

// criteriaFor applies the --market-cap override
func criteriaFor(cmd *cobra.Command, c universe.Criteria) universe.Criteria {
	if cmd.Flags().Changed("market-cap") {
		return c.WithMarketCapFilter(useMarketCap)
	}
	return c
}

func runUniverseBuild(cmd *cobra.Command, args []string) error {
	start := time.Now()
	if buildDate != "" {
		parsed, err := time.Parse(dateLayout, buildDate)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		start = parsed
	}
	end := start
	if buildEnd != "" {
		parsed, err := time.Parse(dateLayout, buildEnd)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		end = parsed
	}

	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	builder, err := universe.NewBuilder(d.loader, criteriaFor(cmd, d.criteria), d.log)
	if err != nil {
		return fmt.Errorf("create builder: %w", err)
	}

	ctx := context.Background()
	universes, err := builder.BuildRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("build universe: %w", err)
	}

	for _, u := range universes {
		if buildSave {
			if err := d.repo.SaveUniverse(ctx, u); err != nil {
				return fmt.Errorf("save universe %s: %w", u.Date.Format(dateLayout), err)
			}
			_ = d.cache.Delete(ctx, redis.UniverseKey(u.Date.Format(dateLayout)))
		}
		if err := printUniverse(u); err != nil {
			return err
		}
	}

	if buildSave {
		PrintSuccess(fmt.Sprintf("Saved %d snapshot(s)", len(universes)))
	}
	return nil
}

func runUniverseExplain(cmd *cobra.Command, args []string) error {
	strategy, err := loadStrategy(config.DefaultStrategyPath)
	if err != nil {
		return err
	}

	criteria := criteriaFor(cmd, universe.CriteriaFromStrategy(strategy))
	filter, err := criteria.Filter()
	if err != nil {
		return fmt.Errorf("compose filter: %w", err)
	}

	if jsonOutput {
		return printJSON(pipeline.Describe(filter))
	}

	hash, err := criteria.Hash()
	if err != nil {
		return err
	}

	PrintDoubleSeparator()
	fmt.Println("  TradableStocksUS")
	PrintSeparator()
	PrintKeyValue("Criteria", hash[:12], 10)
	PrintKeyValue("MarketCap", strconv.FormatBool(criteria.MarketCapFilter), 10)
	PrintSeparator()
	fmt.Println("  Stages")
	PrintNumberedList(criteria.Stages())
	PrintSeparator()
	fmt.Print(pipeline.Render(filter))
	PrintDoubleSeparator()
	return nil
}

func runUniverseShow(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()

	var u *contracts.Universe
	if len(args) == 1 {
		date, perr := time.Parse(dateLayout, args[0])
		if perr != nil {
			return fmt.Errorf("invalid date: %w", perr)
		}
		u, err = d.repo.GetUniverseByDate(ctx, date)
	} else {
		u, err = d.repo.GetLatestUniverse(ctx)
	}
	if err != nil {
		return fmt.Errorf("get universe: %w", err)
	}

	return printUniverse(u)
}

func runUniverseList(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	dates, err := d.repo.ListDates(context.Background(), listLimit)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	if len(dates) == 0 {
		PrintInfo("No snapshots saved")
		return nil
	}

	items := make([]string, len(dates))
	for i, date := range dates {
		items[i] = date.Format(dateLayout)
	}
	PrintList(items)
	return nil
}

func printUniverse(u *contracts.Universe) error {
	if jsonOutput {
		return printJSON(u)
	}

	PrintDoubleSeparator()
	fmt.Printf("  Universe %s\n", u.Date.Format(dateLayout))
	PrintSeparator()
	PrintKeyValue("Run ID", u.RunID, 10)
	PrintKeyValue("Criteria", u.CriteriaHash, 10)
	PrintKeyValue("MarketCap", strconv.FormatBool(u.MarketCapFilter), 10)
	PrintKeyValue("Listed", strconv.Itoa(u.TotalCount), 10)
	PrintKeyValue("Tradable", strconv.Itoa(u.Count()), 10)
	PrintSeparator()

	// 단계별 퍼널 (평가 순서)
	stages := universe.DefaultCriteria().WithMarketCapFilter(u.MarketCapFilter).Stages()
	widths := []int{20, 10, 10}
	PrintTableHeader([]string{"Stage", "Passed", "Excluded"}, widths)
	for _, row := range FunnelRows(u, stages) {
		PrintTableRow(row, widths)
	}

	if showExcluded > 0 && len(u.Excluded) > 0 {
		PrintSeparator()
		PrintExcludedByStage(os.Stdout, u, stages, showExcluded)
	}
	PrintDoubleSeparator()
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
