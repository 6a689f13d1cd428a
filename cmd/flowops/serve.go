package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flowopsai/orchestrator/internal/artifacts"
	"github.com/flowopsai/orchestrator/internal/automation"
	"github.com/flowopsai/orchestrator/internal/ingest"
	"github.com/flowopsai/orchestrator/internal/notify"
	"github.com/flowopsai/orchestrator/internal/observer"
	"github.com/flowopsai/orchestrator/internal/runstore"
	"github.com/flowopsai/orchestrator/internal/tail"
	"github.com/flowopsai/orchestrator/internal/trainer"
	"github.com/flowopsai/orchestrator/web/api"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier := notify.NewRunNotifier(notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	ingestSvc := ingest.New(store, notifier)

	var gateway api.Delegator
	if cfg.Trainer.BaseURL != "" {
		gateway = trainer.New(cfg.Trainer.BaseURL, cfg.Trainer.Timeout(), ingestSvc)
	}

	tailer := tail.New(store, tail.Options{
		Interval:  cfg.Tail.PollInterval(),
		Heartbeat: cfg.Tail.Heartbeat,
	})

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	server := api.NewServer(store, ingestSvc, gateway, tailer, addr, cfg.Web.StaticDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Printf("FlowOps Orchestrator listening at http://%s\n", addr)
		return server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.General.AutomationsPath != "" {
		sched, err := loadScheduler(cfg.General.AutomationsPath)
		if err != nil {
			return err
		}
		if sched != nil {
			g.Go(func() error {
				sched.Start(ctx, fireAutomation(store, gateway))
				return nil
			})
		}
	}

	obs := observer.New(store, ingestSvc, 10*time.Minute)
	g.Go(func() error {
		obs.Start(ctx)
		return nil
	})

	if cfg.General.ModelsDir != "" {
		watcher, err := artifacts.NewWatcher(cfg.General.ModelsDir, func(files []string) {
			log.Printf("artifacts: %d new file(s): %s", len(files), strings.Join(files, ", "))
		})
		if err != nil {
			log.Printf("artifact watcher disabled: %v", err)
		} else {
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	return g.Wait()
}

func loadScheduler(path string) (*automation.Scheduler, error) {
	schedCfg, err := automation.LoadScheduleConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading automations: %w", err)
	}
	if len(schedCfg.Automations) == 0 {
		return nil, nil
	}
	sched, err := automation.NewScheduler(schedCfg.Automations)
	if err != nil {
		return nil, err
	}
	log.Printf("automations: %d schedule(s) loaded from %s", len(schedCfg.Automations), path)
	return sched, nil
}

// fireAutomation enqueues a run for a due automation exactly as the
// API's create pathway would, then delegates it to the trainer.
func fireAutomation(store *runstore.Store, gateway api.Delegator) func(context.Context, automation.Automation) error {
	return func(ctx context.Context, a automation.Automation) error {
		var workflowID *int64
		if a.Pipeline != nil {
			wf, err := store.CreateWorkflow(a.Name, a.Pipeline)
			if err != nil {
				return err
			}
			workflowID = &wf.ID
		}

		run, err := store.CreateRun(workflowID)
		if err != nil {
			return err
		}
		log.Printf("automation %s queued run %s", a.Name, run.ID)

		if gateway == nil {
			return nil
		}
		return gateway.Delegate(ctx, run.ID)
	}
}
