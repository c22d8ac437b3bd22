package router

import (
	"context"
	"net/http"
	"time"

	"ticketpay/config"
	"ticketpay/internal/domain"
	"ticketpay/internal/handler"
	"ticketpay/internal/metrics"
	"ticketpay/internal/middleware"
	"ticketpay/internal/publisher"
	"ticketpay/internal/repository"
	"ticketpay/internal/service"
	"ticketpay/internal/ws"
	"ticketpay/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NewAdapterRegistry builds the rails enabled in cfg. The wallet rail is always on.
func NewAdapterRegistry(cfg *config.Config, tokens *payment.TokenCache, ledger payment.Debiter) *payment.Registry {
	reg := payment.NewRegistry()
	reg.Register(payment.MethodWallet, payment.NewWalletAdapter(ledger))
	if cfg.MTN.Enabled {
		reg.Register(payment.MethodMTNMoMo, payment.NewMTNAdapter(payment.MTNConfig{
			BaseURL:           cfg.MTN.BaseURL,
			APIUser:           cfg.MTN.APIUser,
			APIKey:            cfg.MTN.APIKey,
			SubscriptionKey:   cfg.MTN.SubscriptionKey,
			TargetEnvironment: cfg.MTN.TargetEnvironment,
			CallbackURL:       cfg.Payment.CallbackURL(payment.ProviderMTN),
			Currency:          domain.Currency,
			Timeout:           cfg.MTN.Timeout,
		}, tokens))
	}
	if cfg.Airtel.Enabled {
		reg.Register(payment.MethodAirtelMoney, payment.NewAirtelAdapter(payment.AirtelConfig{
			BaseURL:      cfg.Airtel.BaseURL,
			ClientID:     cfg.Airtel.ClientID,
			ClientSecret: cfg.Airtel.ClientSecret,
			Country:      cfg.Airtel.Country,
			Currency:     domain.Currency,
			Timeout:      cfg.Airtel.Timeout,
		}, tokens))
	}
	if cfg.CardSwitch.Enabled {
		if cfg.CardSwitch.SecretKey == "" {
			logrus.Warn("[CardSwitch] no secret key configured, card callbacks will be refused")
		}
		reg.Register(payment.MethodCard, payment.NewCardSwitchAdapter(payment.CardSwitchConfig{
			BaseURL:     cfg.CardSwitch.BaseURL,
			MerchantID:  cfg.CardSwitch.MerchantID,
			SecretKey:   cfg.CardSwitch.SecretKey,
			CallbackURL: cfg.Payment.CallbackURL(payment.ProviderCardSwitch),
			ReturnURL:   cfg.CardSwitch.ReturnURL,
			Currency:    domain.Currency,
			Timeout:     cfg.CardSwitch.Timeout,
		}))
	}
	return reg
}

// NewPublisher returns a queued Kafka publisher, or a no-op one when no brokers are set.
func NewPublisher(cfg config.KafkaConfig) (publisher.Publisher, func() error) {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		logrus.Info("[Kafka] no brokers configured, settlement events disabled")
		return publisher.NoopPublisher{}, func() error { return nil }
	}
	p := publisher.NewKafkaPublisher(brokers, []string{publisher.PaymentSettledTopic}, publisher.RetryConfig{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      cfg.RetryJitter,
	})
	async := publisher.NewAsyncPublisher(p, 1024, 10*time.Second)
	return async, func() error {
		async.Close()
		return p.Close()
	}
}

// Setup wires the HTTP surface. The returned func releases what Setup opened.
func Setup(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gin.Engine, func()) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	limiter := middleware.NewInMemoryRateLimiter(ctx, cfg.Server.RateLimit, 60*time.Second)

	// Repositories
	paymentRepo := repository.NewPaymentRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Payment core
	tokens := payment.NewTokenCache(payment.TokenCacheConfig{
		SafetyMargin:    cfg.Payment.TokenSafetyMargin,
		ExchangeTimeout: cfg.Payment.TokenExchangeLimit,
		OnRefresh: func(provider string, err error) {
			outcome := "ok"
			if err != nil {
				outcome = "error"
				logrus.WithField("provider", provider).WithError(err).Warn("[Token] exchange failed")
			}
			metrics.TokenRefreshes.WithLabelValues(provider, outcome).Inc()
		},
	})
	ledger := service.NewLedger(walletRepo)
	registry := NewAdapterRegistry(cfg, tokens, ledger)
	pub, closePub := NewPublisher(cfg.Kafka)
	hub := ws.NewHub()

	paymentSvc := service.NewPaymentService(paymentRepo, auditRepo, ledger, registry, pub, hub, cfg.Payment.TTL)
	reconciler := service.NewCallbackReconciler(paymentSvc, auditRepo, cfg.CardSwitch.SecretKey)

	// Handlers
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	walletHandler := handler.NewWalletHandler(ledger)
	callbackHandler := handler.NewCallbackHandler(reconciler, cfg.Payment.WebhookSecret)

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/payments", ws.UpgradePaymentsWS(&cfg.JWT, hub))

	api := r.Group("/api/v1")
	api.POST("/webhooks/:provider", middleware.RateLimit(limiter), callbackHandler.Handle)

	authed := api.Group("")
	authed.Use(middleware.AuthRequired(&cfg.JWT), middleware.RateLimitByUser(limiter))
	{
		authed.POST("/payments", paymentHandler.Initiate)
		authed.GET("/payments/:id", paymentHandler.Status)
		authed.GET("/me/payments", paymentHandler.ListMine)
		authed.GET("/me/wallet", walletHandler.GetBalance)
		authed.GET("/me/wallet/transactions", walletHandler.ListTransactions)
	}

	admin := authed.Group("/admin")
	admin.Use(middleware.AdminRequired())
	{
		admin.POST("/wallets/:user_id/topup", walletHandler.TopUp)
	}

	return r, func() {
		if err := closePub(); err != nil {
			logrus.WithError(err).Warn("[Kafka] close failed")
		}
	}
}
