package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/claude-session-monitor/internal/alerthistory"
	"github.com/hochfrequenz/claude-session-monitor/internal/config"
	"github.com/hochfrequenz/claude-session-monitor/internal/dashboard"
	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
	"github.com/hochfrequenz/claude-session-monitor/internal/notify"
	"github.com/hochfrequenz/claude-session-monitor/internal/stream"
	"github.com/hochfrequenz/claude-session-monitor/internal/stuck"
	"github.com/hochfrequenz/claude-session-monitor/web/api"
)

var (
	servePort    int
	historyLimit int
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor and its web dashboard",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show monitor status from a running instance",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// repos command
	reposCmd := &cobra.Command{
		Use:   "repos",
		Short: "List monitored repositories",
		RunE:  runRepos,
	}
	rootCmd.AddCommand(reposCmd)

	// stuck command
	stuckCmd := &cobra.Command{
		Use:   "stuck",
		Short: "List active stuck alerts",
		RunE:  runStuck,
	}
	rootCmd.AddCommand(stuckCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history REPO",
		Short: "Show alert history for a repository",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max entries to show")
	rootCmd.AddCommand(historyCmd)

	// config commands
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stuck detection settings",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE:  runConfigShow,
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a detection setting",
		Args:  cobra.ExactArgs(2),
		RunE:  runConfigSet,
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore detection defaults",
		RunE:  runConfigReset,
	})
	rootCmd.AddCommand(configCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	history, err := alerthistory.New(cfg.Monitor.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening alert history: %w", err)
	}
	defer history.Close()

	notifier := notify.NewMultiNotifier(
		notify.NewDesktopNotifier(cfg.Detection.EnableToastNotifications),
		notify.NewSoundNotifier(cfg.Detection.EnableSoundAlerts),
		notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
	)

	// The session and server reference each other: alert and state
	// transitions fan out to SSE clients through the server.
	var server *api.Server
	session := dashboard.New(cfg, dashboard.Options{
		History:  history,
		Notifier: notifier,
		OnAlert: func(transition string, alert *domain.StuckAlert) {
			server.Broadcast(api.SSEEvent{Type: alertEventType(transition), Data: alert})
		},
		OnState: func(state *domain.RepoSessionState) {
			server.Broadcast(api.SSEEvent{Type: api.SSERepoState, Data: state})
		},
		OnConn: func(status stream.Status) {
			server.Broadcast(api.SSEEvent{Type: api.SSEConnection, Data: status})
		},
	})

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	server = api.NewServer(session, history, addr)

	// Hot-reload detection settings when the config file changes.
	watchPath := configPath
	if watchPath == "" {
		watchPath = config.DefaultConfigPath()
	}
	watcher, err := config.NewWatcher(watchPath, func(next *config.Config) {
		if err := session.ApplyDetection(next.Detection); err != nil {
			log.Printf("ignoring config reload: %v", err)
			return
		}
		log.Printf("detection config reloaded from %s", watchPath)
	})
	if err != nil {
		log.Printf("config watching disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Monitoring %s\n", cfg.Monitor.StreamURL)
	fmt.Printf("Dashboard at http://%s\n", addr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func alertEventType(transition string) string {
	switch transition {
	case alerthistory.TransitionEscalated:
		return api.SSEAlertEscalate
	case alerthistory.TransitionResolved:
		return api.SSEAlertResolved
	default:
		return api.SSEAlertCreated
	}
}

// apiGet queries the local serve instance.
func apiGet(cfg *config.Config, path string, out interface{}) error {
	url := fmt.Sprintf("http://%s:%d%s", cfg.Web.Host, cfg.Web.Port, path)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is the monitor running? %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var status api.StatusResponse
	if err := apiGet(cfg, "/api/status", &status); err != nil {
		return err
	}

	fmt.Printf("Stream: %s", status.Connection.State)
	if status.Connection.Reason != "" {
		fmt.Printf(" (%s)", status.Connection.Reason)
	}
	fmt.Println()
	fmt.Printf("Repos: %d | Stuck: %d", status.RepoCount, status.TotalStuckCount)
	if status.HighestSeverity != "" {
		fmt.Printf(" (highest: %s)", status.HighestSeverity)
	}
	fmt.Println()
	if status.PendingOperations > 0 {
		fmt.Printf("Pending operations: %d\n", status.PendingOperations)
	}
	if !status.DetectionEnabled {
		fmt.Println("Stuck detection: disabled")
	}
	return nil
}

func runRepos(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var repos []api.RepoResponse
	if err := apiGet(cfg, "/api/repos", &repos); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tCLAUDE\tSESSION\tTASK\tATTENTION")
	for _, r := range repos {
		task := "-"
		if r.CurrentTask != nil {
			task = r.CurrentTask.Status
			if r.CurrentTask.Progress != nil {
				task = fmt.Sprintf("%s (%d%%)", task, *r.CurrentTask.Progress)
			}
		}
		attention := ""
		if r.NeedsAttention {
			attention = "!"
		}
		session := r.SessionStatus
		if session == "" {
			session = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.RepositoryName, r.ClaudeStatus, session, task, attention)
	}
	w.Flush()
	return nil
}

func runStuck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var status api.StuckStatusResponse
	if err := apiGet(cfg, "/api/stuck", &status); err != nil {
		return err
	}

	if len(status.Alerts) == 0 {
		fmt.Println("No active alerts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tREASON\tSEVERITY\tSTUCK FOR\tACK")
	for _, a := range status.Alerts {
		ack := ""
		if a.Acknowledged {
			ack = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.RepositoryName, a.Reason, a.Severity,
			(time.Duration(a.StuckDurationSeconds) * time.Second).String(), ack)
	}
	w.Flush()
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var entries []api.HistoryEntryResponse
	path := fmt.Sprintf("/api/history/%s?limit=%d", args[0], historyLimit)
	if err := apiGet(cfg, path, &entries); err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No history")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORDED\tTRANSITION\tREASON\tSEVERITY\tDURATION")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.RecordedAt, e.Transition, e.Reason, e.Severity,
			(time.Duration(e.StuckDurationSeconds) * time.Second).String())
	}
	w.Flush()
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d := cfg.Detection
	fmt.Printf("enabled = %t\n", d.Enabled)
	fmt.Printf("sensitivity_level = %s\n", d.SensitivityLevel)
	fmt.Printf("no_output_threshold_seconds = %d\n", d.NoOutputThresholdSeconds)
	fmt.Printf("waiting_input_threshold_seconds = %d\n", d.WaitingInputThresholdSeconds)
	fmt.Printf("repeated_failure_count = %d\n", d.RepeatedFailureCount)
	fmt.Printf("enable_toast_notifications = %t\n", d.EnableToastNotifications)
	fmt.Printf("enable_sound_alerts = %t\n", d.EnableSoundAlerts)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	key, value := args[0], args[1]
	if err := applyConfigKey(&cfg.Detection, key, value); err != nil {
		return err
	}
	if err := cfg.Detection.Validate(); err != nil {
		return err
	}

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Saved %s = %s\n", key, value)
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cfg.Detection = stuck.DefaultConfig()

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Println("Detection settings restored to defaults")
	return nil
}

func applyConfigKey(d *stuck.Config, key, value string) error {
	switch key {
	case "enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false", key)
		}
		d.Enabled = b
	case "sensitivity_level":
		d.SensitivityLevel = domain.Sensitivity(value)
	case "no_output_threshold_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects a number", key)
		}
		d.NoOutputThresholdSeconds = n
	case "waiting_input_threshold_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects a number", key)
		}
		d.WaitingInputThresholdSeconds = n
	case "repeated_failure_count":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects a number", key)
		}
		d.RepeatedFailureCount = n
	case "enable_toast_notifications":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false", key)
		}
		d.EnableToastNotifications = b
	case "enable_sound_alerts":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false", key)
		}
		d.EnableSoundAlerts = b
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}
