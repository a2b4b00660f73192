package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"thesis-portal/thesis-portal-backend/internal/config"
	"thesis-portal/thesis-portal-backend/internal/notifications"
	"thesis-portal/thesis-portal-backend/internal/submissions"
)

// ReminderWorker nudges supervisors about submissions that have been
// pending longer than the configured threshold.
type ReminderWorker struct {
	repo         submissions.Repository
	notifier     notifications.Dispatcher
	pendingAfter time.Duration
	logger       *zap.Logger
}

func NewReminderWorker(repo submissions.Repository, notifier notifications.Dispatcher, pendingAfter time.Duration, logger *zap.Logger) *ReminderWorker {
	return &ReminderWorker{
		repo:         repo,
		notifier:     notifier,
		pendingAfter: pendingAfter,
		logger:       logger,
	}
}

// Run scans for stale pending submissions and dispatches one reminder per
// supervisor listing their overdue reviews.
func (w *ReminderWorker) Run(ctx context.Context) {
	cutoff := time.Now().Add(-w.pendingAfter)
	stale, err := w.repo.ListStalePending(ctx, cutoff)
	if err != nil {
		w.logger.Error("Failed to list stale submissions", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	bySupervisor := make(map[string][]submissions.Submission)
	for _, sub := range stale {
		key := sub.SupervisorID.String()
		bySupervisor[key] = append(bySupervisor[key], sub)
	}

	w.logger.Info("Dispatching review reminders",
		zap.Int("stale_submissions", len(stale)),
		zap.Int("supervisors", len(bySupervisor)))

	for _, subs := range bySupervisor {
		oldest := subs[0]
		w.notifier.Dispatch(ctx, notifications.Notification{
			RecipientID: oldest.SupervisorID,
			Type:        notifications.TypeReviewReminder,
			Title:       "Pending reviews waiting",
			Message: fmt.Sprintf("%d submission(s) have been awaiting your review since %s",
				len(subs), oldest.SubmittedAt.Format("2 Jan 2006")),
			RelatedID: &oldest.ID,
		})
	}
}

func main() {
	godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to open gorm connection", zap.Error(err))
	}

	notificationService, err := notifications.NewService(gormDB, nil, nil, logger)
	if err != nil {
		logger.Fatal("Failed to init notification service", zap.Error(err))
	}

	worker := NewReminderWorker(
		submissions.NewRepository(db),
		notificationService,
		cfg.Reminders.PendingAfter,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Reminders.Schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		worker.Run(runCtx)
	}); err != nil {
		logger.Fatal("Invalid reminder schedule", zap.String("schedule", cfg.Reminders.Schedule), zap.Error(err))
	}
	scheduler.Start()

	logger.Info("Reminder worker started",
		zap.String("schedule", cfg.Reminders.Schedule),
		zap.Duration("pending_after", cfg.Reminders.PendingAfter))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("Reminder worker stopped")
}
