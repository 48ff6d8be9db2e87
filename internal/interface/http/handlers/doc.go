// Package handlers contains reusable HTTP pieces for the progress server.
//
// This package provides:
//   - Composite health checks for postgres and redis
//   - The Telegram bot webhook router with the /start and /progress commands
//   - Middleware shared by the API routes
//
// # Health Checks
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewDatabaseCheck(conn))
//	checker.AddOptionalCheck("redis", handlers.NewCacheCheck(cache))
//
//	status := checker.Check(ctx)
//
// A failed critical check reports StatusDown; a failed optional check
// reports StatusDegraded and keeps the server ready.
//
// # Webhook Handling
//
//	bot := handlers.NewBotWebhook(log)
//	bot.RegisterCommand("start", handlers.NewStartCommand(tg, webAppURL))
//	bot.RegisterCommand("progress", handlers.NewProgressCommand(tg, progress, webAppURL))
//
//	err := bot.HandleTelegramUpdate(ctx, payload)
package handlers
