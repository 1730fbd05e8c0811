package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/DieForGlory/portal-analytics-sub000/internal/adapters/cbu"
	"github.com/DieForGlory/portal-analytics-sub000/internal/adapters/cli"
	"github.com/DieForGlory/portal-analytics-sub000/internal/adapters/mailer"
	"github.com/DieForGlory/portal-analytics-sub000/internal/adapters/telegram"
	"github.com/DieForGlory/portal-analytics-sub000/internal/app"
	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
	"github.com/DieForGlory/portal-analytics-sub000/internal/db"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		log.Fatal("Usage: app <command> [args]\nAvailable: sync, rate, manual-rate, versions, activate, summary, offer, template, import")
	}

	ctx := context.Background()
	stores, err := db.NewStores(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer stores.Close()

	source, err := db.NewSourcePool(ctx)
	if err != nil {
		log.Fatalf("source database: %v", err)
	}
	defer source.Close()

	cli.Run(ctx, buildService(stores, source), os.Args[1:])
}

func buildService(stores *db.Stores, source *pgxpool.Pool) app.ApplicationService {
	currency := core.NewCurrencyService(stores.Default, cbu.New())
	settings := core.NewSettingsService(stores.Planning)
	exclusions := core.NewExclusionService(stores.Default)
	discounts := core.NewDiscountService(stores.Planning, stores.Default, currency)
	pricing := core.NewPricingService(stores.Default, discounts)
	selection := core.NewSelectionService(stores.Default, discounts, currency, exclusions)
	installments := core.NewInstallmentService(stores.Planning, settings, currency, pricing)
	syncSvc := core.NewSyncService(source, stores.Default)
	funnel := core.NewFunnelService(stores.Default)
	planning := core.NewPlanningService(stores.Planning)
	reporting := core.NewReportingService(stores.Default, planning, currency)
	notifications := core.NewNotificationService(stores.Default)

	chatID, _ := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
	tg := telegram.New(os.Getenv("TELEGRAM_BOT_TOKEN"), chatID)

	mailPort, _ := strconv.Atoi(os.Getenv("MAIL_PORT"))
	mail := mailer.New(mailer.Config{
		Host:     os.Getenv("MAIL_SERVER"),
		Port:     mailPort,
		Username: os.Getenv("MAIL_USERNAME"),
		Password: os.Getenv("MAIL_PASSWORD"),
		From:     os.Getenv("MAIL_FROM"),
	})

	return app.NewAppService(
		stores, currency, settings, exclusions, discounts, pricing, selection,
		installments, syncSvc, funnel, planning, reporting, notifications, tg, mail,
	)
}
