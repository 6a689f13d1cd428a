package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/flowopsai/orchestrator/internal/config"
	"github.com/flowopsai/orchestrator/internal/domain"
	"github.com/flowopsai/orchestrator/internal/runstore"
	"github.com/flowopsai/orchestrator/tui"
)

var (
	runsStatus   string
	createFile   string
	createName   string
	watchBaseURL string
	servePort    int
)

func init() {
	// runs command group
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage runs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE:  runList,
	}
	listCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status")
	runsCmd.AddCommand(listCmd)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a queued run",
		RunE:  runCreate,
	}
	createCmd.Flags().StringVar(&createFile, "pipeline", "", "JSON pipeline spec file")
	createCmd.Flags().StringVar(&createName, "name", "", "workflow name")
	runsCmd.AddCommand(createCmd)

	rootCmd.AddCommand(runsCmd)

	// events command
	eventsCmd := &cobra.Command{
		Use:   "events RUN",
		Short: "Print a run's event log",
		Args:  cobra.ExactArgs(1),
		RunE:  runEvents,
	}
	rootCmd.AddCommand(eventsCmd)

	// models command
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List registered model artifacts",
		RunE:  runModels,
	}
	rootCmd.AddCommand(modelsCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show run totals",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch RUN",
		Short: "Watch a run's live event feed",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchBaseURL, "server", "", "orchestrator base address, host:port")
	rootCmd.AddCommand(watchCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore() (*config.Config, *runstore.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runList(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tUPDATED")
	for _, r := range runs {
		if runsStatus != "" && string(r.Status) != runsStatus {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.ID, r.Status,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var workflowID *int64
	if createFile != "" {
		data, err := os.ReadFile(createFile)
		if err != nil {
			return err
		}
		var spec domain.PipelineSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			return fmt.Errorf("parsing pipeline spec: %w", err)
		}
		name := createName
		if name == "" {
			name = "ad-hoc"
		}
		wf, err := store.CreateWorkflow(name, &spec)
		if err != nil {
			return err
		}
		workflowID = &wf.ID
	}

	run, err := store.CreateRun(workflowID)
	if err != nil {
		return err
	}

	fmt.Printf("Created run %s (queued)\n", run.ID)
	fmt.Println("Note: runs created offline are not delegated; the serve process delegates API-created runs")
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.ListEvents(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTS\tLEVEL\tTITLE\tDETAIL")
	for _, ev := range events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			ev.ID, ev.TS.Format("15:04:05"), ev.Level, ev.Title, ev.Detail)
	}
	w.Flush()

	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	models, err := store.ListModels()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPATH\tCREATED")
	for _, m := range models {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			m.ID, m.Name, m.Path, m.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.CountRunsByStatus()
	if err != nil {
		return err
	}
	modelCount, err := store.CountModels()
	if err != nil {
		return err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	fmt.Printf("Runs: %d total | %d queued | %d running | %d completed | %d failed\n",
		total,
		counts[domain.RunQueued], counts[domain.RunRunning],
		counts[domain.RunCompleted], counts[domain.RunFailed])
	fmt.Printf("Models: %d\n", modelCount)

	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	base := watchBaseURL
	if base == "" {
		base = fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	}

	// Seed the current status before attaching: a run that went
	// terminal before we connected must not render as queued.
	status, err := fetchRunStatus("http://"+base, args[0])
	if err != nil {
		return err
	}

	wsURL := fmt.Sprintf("ws://%s/ws/runs/%s", base, args[0])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := tui.ConnectFeed(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", wsURL, err)
	}

	model := tui.NewModel(tui.ModelConfig{
		RunID:  args[0],
		Status: status,
		Feed:   feed,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// fetchRunStatus reads a run's cached status from the API
func fetchRunStatus(baseURL, runID string) (domain.RunStatus, error) {
	resp, err := http.Get(baseURL + "/api/runs/" + runID)
	if err != nil {
		return "", fmt.Errorf("fetching run %s: %w", runID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("run %s not found", runID)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching run %s: status %d", runID, resp.StatusCode)
	}

	var run struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return "", err
	}
	return domain.RunStatus(run.Status), nil
}
