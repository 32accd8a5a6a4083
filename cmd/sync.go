package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sapas/internal/repository"
	"sapas/internal/service"

	"github.com/spf13/cobra"
)

var syncBarsCmd = &cobra.Command{
	Use:   "sync-bars",
	Short: "Pull the latest daily bars from the gateway once and exit",
	Run:   SyncBars,
}

func SyncBars(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}
	defer appDep.Close()

	repo, err := repository.NewRepository(appDep.cfg, appDep.db.DB, appDep.cache, appDep.log)
	if err != nil {
		log.Fatalf("Failed to create repository: %v", err)
	}

	scheduler := service.NewSchedulerService(appDep.cfg, appDep.log, repo, appDep.cache)
	if err := scheduler.SyncDailyBars(ctx); err != nil {
		log.Fatalf("Daily bar sync failed: %v", err)
	}
}
