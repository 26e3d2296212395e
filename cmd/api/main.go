package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
	"github.com/chatlyid/whatsapp-assistant-be/internal/config"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/agent"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/booking"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/conversation"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/knowledge"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/llm"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/tenant"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/vector"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/whatsapp"
	"github.com/chatlyid/whatsapp-assistant-be/internal/handlers"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
	"github.com/chatlyid/whatsapp-assistant-be/internal/shared/utils"
)

// @title WhatsApp Business Assistant API
// @version 1.0
// @description Multi-tenant WhatsApp assistant with knowledge retrieval and bookings
// @host localhost:8080
// @BasePath /
func main() {
	cfg := config.LoadConfig()
	utils.InitLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect document store")
	}

	ttl := cache.New(nil)
	ttl.StartSweep()
	defer ttl.Stop()

	embedder, err := vector.NewOpenAIEmbeddingProvider(cfg.OpenAIKey, "")
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to create embedding provider")
	}

	vectorProvider := vector.NewQdrantProvider(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantAPIKey)
	if err := vectorProvider.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect vector store")
	}
	defer vectorProvider.Close()
	if err := vectorProvider.EnsureCollection(ctx, knowledge.CollectionName, embedder.GetDimensions()); err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to ensure vector collection")
	}

	conversations := conversation.NewStore(docs, ttl)
	tenants := tenant.NewService(docs, ttl)
	bookings := booking.NewEngine(docs, ttl)
	flow := booking.NewFlow()
	knowledgeSvc := knowledge.NewService(docs, vectorProvider, embedder, ttl)
	llmSvc := llm.NewService(cfg.OpenAIKey, "")

	waProvider := whatsapp.NewWhatsmeowProvider(cfg.WhatsAppStoreURL, docs)
	if err := waProvider.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to init WhatsApp store")
	}
	defer waProvider.Close()
	waService := whatsapp.NewService(waProvider, docs)
	notifier := whatsapp.NewNotifier(waProvider)

	engine := agent.NewEngine(waService, llmSvc, knowledgeSvc, bookings, flow, conversations, tenants)
	waProvider.OnMessage(engine.HandleMessage)

	go waService.RestoreSessions(ctx, 2*time.Minute)
	go waProvider.StartKeepAlive(ctx)

	scheduler := cron.New()
	scheduler.AddFunc("0 * * * *", func() {
		conversations.SweepAllTenants(context.Background())
	})
	scheduler.AddFunc("*/10 * * * *", func() {
		if removed := flow.SweepStale(); removed > 0 {
			log.Info().Int("removed", removed).Msg("🧹 Stale booking dialogues swept")
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	healthHandler := handlers.NewHealthHandler()
	tenantHandler := handlers.NewTenantHandler(tenants)
	knowledgeHandler := handlers.NewKnowledgeHandler(knowledgeSvc)
	conversationHandler := handlers.NewConversationHandler(conversations)
	bookingHandler := handlers.NewBookingHandler(bookings, notifier)
	whatsappHandler := handlers.NewWhatsAppHandler(waService)

	app := fiber.New(fiber.Config{
		AppName:      "whatsapp-assistant-be",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Get("/health", healthHandler.GetHealth)

	app.Get("/tenants/:id/profile", tenantHandler.GetProfile)
	app.Put("/tenants/:id/profile", tenantHandler.UpdateProfile)
	app.Get("/tenants/:id/stats", tenantHandler.GetStats)

	app.Post("/tenants/:id/knowledge", knowledgeHandler.AddSource)
	app.Get("/tenants/:id/knowledge", knowledgeHandler.ListSources)
	app.Get("/tenants/:id/knowledge/search", knowledgeHandler.SearchKnowledge)
	app.Delete("/tenants/:id/knowledge/:source", knowledgeHandler.DeleteSource)

	app.Get("/tenants/:id/conversations/:key", conversationHandler.GetHistory)
	app.Delete("/tenants/:id/conversations", conversationHandler.WipeConversations)
	app.Post("/tenants/:id/conversations/purge", conversationHandler.PurgeOldMessages)

	app.Get("/tenants/:id/booking/settings", bookingHandler.GetSettings)
	app.Put("/tenants/:id/booking/settings", bookingHandler.SaveSettings)
	app.Get("/tenants/:id/booking/slots", bookingHandler.GetAvailableSlots)
	app.Get("/tenants/:id/booking/dates", bookingHandler.GetNextDates)
	app.Post("/tenants/:id/bookings", bookingHandler.CreateBooking)
	app.Get("/tenants/:id/bookings", bookingHandler.ListBookings)
	app.Patch("/tenants/:id/bookings/:bookingId/status", bookingHandler.UpdateBookingStatus)

	app.Get("/tenants/:id/whatsapp/qr", whatsappHandler.GetQRCode)
	app.Get("/tenants/:id/whatsapp/status", whatsappHandler.GetStatus)
	app.Post("/tenants/:id/whatsapp/connect", whatsappHandler.Connect)
	app.Post("/tenants/:id/whatsapp/disconnect", whatsappHandler.Disconnect)

	go func() {
		<-ctx.Done()
		log.Info().Msg("🛑 Shutting down...")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Info().Str("port", cfg.Port).Msg("🚀 API running")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("❌ Server stopped")
	}
}
