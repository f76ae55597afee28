package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tradable-universe/internal/marketdata"
	"github.com/wonny/tradable-universe/internal/scheduler"
	"github.com/wonny/tradable-universe/internal/scheduler/jobs"
	"github.com/wonny/tradable-universe/internal/universe"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

이 명령어는:
- 스케줄러 데몬 시작
- 등록된 작업 조회
- 작업 실행 이력 조회

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)
  status  - 작업 실행 상태 조회

Example:
  go run ./cmd/universe scheduler start
  go run ./cmd/universe scheduler list
  go run ./cmd/universe scheduler run universe_snapshot`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- universe_snapshot: 전략 설정 schedule.cron (기본: 평일 18:30 America/New_York)
- snapshot_cleanup: 매주 일요일 03:00 (보존 기간 경과 스냅샷 삭제)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "작업 실행 상태 조회",
		RunE:  showStatus,
	}
)

var retentionDays int

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)

	schedulerCmd.PersistentFlags().IntVar(&retentionDays, "retention-days", 730, "스냅샷 보존 기간 (일)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== TradableStocksUS Scheduler ===")

	// Initialize dependencies
	d, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	// Start scheduler
	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	printJobs(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	d, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	fmt.Println("Registered jobs:")
	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	d, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := sched.RunJobSync(ctx, jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("job %s failed after %v: %s", jobName, result.Duration, result.Error)
	}

	PrintSuccess(fmt.Sprintf("Job %s completed in %v", jobName, result.Duration))
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	d, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	stats := sched.GetJobStats()

	fmt.Println("Job Statistics:")
	fmt.Println()

	for _, jobName := range sched.GetAllJobs() {
		stat := stats[jobName]
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)
		if stat.ConsecutiveFailures > 0 {
			fmt.Printf("   ⚠️  Consecutive Failures: %d\n", stat.ConsecutiveFailures)
		}

		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
		}

		if stat.LastSuccess != nil {
			fmt.Printf("   Last Success: %s\n", stat.LastSuccess.Format("2006-01-02 15:04:05"))
		}

		if stat.LastFailure != nil {
			fmt.Printf("   Last Failure: %s\n", stat.LastFailure.Format("2006-01-02 15:04:05"))
		}

		fmt.Println()
	}

	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	for _, jobName := range sched.GetAllJobs() {
		if next, ok := sched.NextRun(jobName); ok && !next.IsZero() {
			fmt.Printf("  - %s (next: %s)\n", jobName, next.Format(time.RFC3339))
			continue
		}
		fmt.Printf("  - %s\n", jobName)
	}
}

func initScheduler() (*deps, *scheduler.Scheduler, error) {
	// 1. Config, DB, Redis, strategy
	d, err := initDeps()
	if err != nil {
		return nil, nil, err
	}

	// 2. Schedule time zone
	loc, err := time.LoadLocation(d.strategy.Meta.Timezone)
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("load timezone: %w", err)
	}

	// 3. Universe builder
	builder, err := universe.NewBuilder(d.loader, d.criteria, d.log)
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("create builder: %w", err)
	}

	// 4. Create scheduler
	sched := scheduler.New(d.log, scheduler.WithLocation(loc), scheduler.WithRetry(3, time.Minute))

	// 5. Register jobs
	if d.strategy.Schedule.SaveSnapshots {
		quality := marketdata.DefaultQualityConfig()
		if d.criteria.MarketCapFilter {
			quality.MinFundamentalsCoverage = 0.5
		}
		job := jobs.NewUniverseJob(builder, d.repo, d.loader, d.strategy.Schedule.Cron, d.strategy.Schedule.LookbackDays, d.log).
			WithQualityGate(marketdata.NewQualityGate(d.db.Pool, quality))
		if err := sched.AddJob(job); err != nil {
			d.Close()
			return nil, nil, err
		}
	} else {
		d.log.Warn("schedule.save_snapshots=false, universe_snapshot job not registered")
	}

	retention := time.Duration(retentionDays) * 24 * time.Hour
	if err := sched.AddJob(jobs.NewSnapshotCleanupJob(d.repo, retention, d.log)); err != nil {
		d.Close()
		return nil, nil, err
	}

	return d, sched, nil
}
