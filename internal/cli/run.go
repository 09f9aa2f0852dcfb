package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tavernier-bot/tavernier/internal/activity"
	"github.com/tavernier-bot/tavernier/internal/afk"
	"github.com/tavernier-bot/tavernier/internal/audit"
	"github.com/tavernier-bot/tavernier/internal/bus"
	"github.com/tavernier-bot/tavernier/internal/config"
	"github.com/tavernier-bot/tavernier/internal/gateway"
	"github.com/tavernier-bot/tavernier/internal/infochannels"
	"github.com/tavernier-bot/tavernier/internal/leaderboard"
	"github.com/tavernier-bot/tavernier/internal/moderation"
	"github.com/tavernier-bot/tavernier/internal/platform/discord"
	"github.com/tavernier-bot/tavernier/internal/rooms"
	"github.com/tavernier-bot/tavernier/internal/scheduler"
	"github.com/tavernier-bot/tavernier/internal/status"
	"github.com/tavernier-bot/tavernier/internal/store"
	"github.com/tavernier-bot/tavernier/internal/welcome"
)

var runDebug bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot",
	RunE:  runBot,
}

func init() {
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")
}

func setupLogging() {
	level := slog.LevelInfo
	if runDebug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func runBot(cmd *cobra.Command, args []string) error {
	printHeader("🍺 Tavernier")
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	auditPub := audit.New(cfg.Audit)
	defer auditPub.Close()

	eventBus := bus.New()
	client, err := discord.New(cfg.Bot.Token, cfg.Bot.GuildID, eventBus)
	if err != nil {
		return err
	}

	ledger := activity.NewLedger(st, client, cfg.Activity, auditPub)
	roomMgr := rooms.NewManager(client, st, cfg.Rooms, cfg.Bot, auditPub)
	board := leaderboard.NewBuilder(ledger, client, cfg.Leaderboard)
	mod := moderation.New(client, cfg.Bot)
	greeter := welcome.New(client, cfg.Welcome)
	info := infochannels.New(client, cfg.Infochannels)
	rotator := status.New(client, cfg.Status)
	away := afk.New(client)

	gw := gateway.New(eventBus, client, cfg, ledger, roomMgr, board, mod, greeter, info, away, auditPub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Open(ctx); err != nil {
		return err
	}
	defer client.Close()

	if err := roomMgr.Reconcile(ctx); err != nil {
		slog.Warn("room reconciliation incomplete", "error", err)
	}

	sched := scheduler.New(0)
	if cfg.Leaderboard.ChannelID != "" {
		cron, err := scheduler.ParseCron(cfg.Leaderboard.Cron)
		if err != nil {
			return fmt.Errorf("invalid leaderboard cron: %w", err)
		}
		sched.Register(&scheduler.Job{Name: "leaderboard", Cron: cron, Run: board.Post})
	}
	if cfg.Infochannels.OnlinesChannelID != "" {
		cron, err := scheduler.ParseCron(cfg.Infochannels.Cron)
		if err != nil {
			return fmt.Errorf("invalid infochannels cron: %w", err)
		}
		sched.Register(&scheduler.Job{Name: "online-counter", Cron: cron, Run: info.UpdateOnlineCount})
	}
	if cfg.Status.Enabled {
		sched.Register(&scheduler.Job{Name: "status-rotation", Every: cfg.Status.Interval, Run: rotator.Tick})
	}
	go sched.Run(ctx)
	go gw.Run(ctx)

	slog.Info("tavernier running", "guild", cfg.Bot.GuildID, "version", version)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	roomMgr.Shutdown(shutdownCtx)

	return nil
}
