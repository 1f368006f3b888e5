package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sagehand/ideakeeper/bot"
	"github.com/sagehand/ideakeeper/dashboard"
	"github.com/sagehand/ideakeeper/internal/logutil"
	"github.com/sagehand/ideakeeper/internal/pathutil"
	"github.com/sagehand/ideakeeper/internal/telegram"
	"github.com/sagehand/ideakeeper/knowledge"
	"github.com/sagehand/ideakeeper/personality"
	"github.com/sagehand/ideakeeper/providers/openai"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Telegram bot (long polling)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}

	cmd.Flags().String("token", "", "Telegram bot token (overrides config).")
	_ = viper.BindPFlag("telegram.token", cmd.Flags().Lookup("token"))

	return cmd
}

func runBot(parent context.Context) error {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	token := strings.TrimSpace(viper.GetString("telegram.token"))
	if token == "" {
		return fmt.Errorf("telegram.token is required (flag --token or %s_TELEGRAM_TOKEN)", envPrefix)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := telegram.NewAPI(nil, viper.GetString("telegram.base_url"), token)
	me, err := api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	logger.Info("bot identity resolved", "username", me.Username, "id", me.ID)

	llmClient := openai.New(
		viper.GetString("llm.endpoint"),
		viper.GetString("llm.api_key"),
		viper.GetString("llm.model"),
	)

	// A store failure is survivable: the bot runs with knowledge features
	// disabled rather than not at all.
	var store knowledge.Store
	knowledgeEnabled := false
	dbPath := pathutil.ExpandHomePath(viper.GetString("knowledge.db_path"))
	store, err = knowledge.OpenSQLite(dbPath)
	if err != nil {
		logger.Error("knowledge store unavailable, running degraded", "path", dbPath, "error", err)
		store = nil
	} else {
		knowledgeEnabled = true
		defer store.Close()
	}

	tracker, err := personality.NewTracker(personality.Options{
		Path:       pathutil.ExpandHomePath(viper.GetString("personality.path")),
		MinSamples: viper.GetInt("personality.min_samples"),
		Allowed:    viper.GetStringSlice("personality.allowed"),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("personality tracker: %w", err)
	}

	state := bot.NewConversationStore(bot.ConversationStoreOptions{
		Retention:  viper.GetDuration("history.retention"),
		MaxHistory: viper.GetInt("history.max_entries"),
		Logger:     logger,
	})

	dashboardURL := viper.GetString("dashboard.url")
	if viper.GetBool("dashboard.enabled") && knowledgeEnabled {
		addr := net.JoinHostPort(viper.GetString("dashboard.bind"), strconv.Itoa(viper.GetInt("dashboard.port")))
		if dashboardURL == "" {
			dashboardURL = "http://" + addr
		}
		srv := dashboard.New(dashboard.Options{Addr: addr, Store: store, Logger: logger})
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("dashboard stopped", "error", err)
			}
		}()
	}

	b := bot.New(bot.Options{
		Config: bot.Config{
			BotID:            me.ID,
			BotUsername:      me.Username,
			SystemPrompt:     viper.GetString("llm.system_prompt"),
			DashboardURL:     dashboardURL,
			CompletionBudget: viper.GetDuration("llm.completion_budget"),
			PollTimeout:      viper.GetDuration("telegram.poll_timeout"),
			KnowledgeEnabled: knowledgeEnabled,
		},
		Transport:   api,
		Updates:     api,
		LLM:         llmClient,
		Knowledge:   store,
		Personality: tracker,
		State:       state,
		Logger:      logger,
	})

	logger.Info("starting update loop",
		"poll_timeout", viper.GetDuration("telegram.poll_timeout"),
		"knowledge_enabled", knowledgeEnabled)
	err = b.Run(ctx)
	if err != nil && ctx.Err() != nil {
		logger.Info("shutting down")
		// Give in-flight sends a moment before process exit.
		time.Sleep(100 * time.Millisecond)
		return nil
	}
	return err
}
