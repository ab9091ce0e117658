package main

import (
	"log"
	"strings"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/audit"
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/config"
	"buildtrack-backend/internal/dashboard"
	"buildtrack-backend/internal/database"
	"buildtrack-backend/internal/logger"
	"buildtrack-backend/internal/material"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/purchase"
	"buildtrack-backend/internal/receipt"
	"buildtrack-backend/internal/reconcile"
	"buildtrack-backend/internal/site"
	"buildtrack-backend/internal/store"
	"buildtrack-backend/internal/vendor"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	zlog := logger.New(&logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Output:     "stdout",
		TimeFormat: logger.DefaultConfig().TimeFormat,
	})
	defer func() { _ = zlog.Sync() }()

	db, err := database.Connect(cfg, zlog)
	if err != nil {
		zlog.Fatal("database unavailable", zap.Error(err))
	}
	rs := store.NewGormStore(db)

	auditWriter := audit.NewWriter(rs, zlog.Named("audit"))
	sites := site.NewRegistry(rs, auditWriter)
	vendors := vendor.NewRegistry(rs, auditWriter)
	materials := material.NewRegistry(rs, sites, auditWriter)
	book := purchase.NewBook(rs)
	ledger := receipt.NewLedger(rs, materials, sites, vendors, auditWriter, zlog.Named("receipt"))
	engine := reconcile.NewEngine(rs, materials, book, vendors, auditWriter, zlog.Named("reconcile"), cfg.SyncMaxAttempts)

	app := fiber.New(fiber.Config{
		ErrorHandler: apperr.FiberErrorHandler(zlog),
		BodyLimit:    10 * 1024 * 1024,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOriginList(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))
	app.Use(logger.FiberMiddleware(zlog))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-organization", auth.RegisterOrganizationHandler(cfg, rs))
	api.Post("/auth/login", auth.LoginHandler(cfg, rs))

	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler(rs))

	adminOnly := auth.RequireRole(models.RoleOrgAdmin)
	protected.Post("/users", adminOnly, auth.CreateUserHandler(rs))

	// Sites
	protected.Get("/sites", site.ListSitesHandler(sites))
	protected.Get("/sites/:id", site.GetSiteHandler(sites))
	protected.Post("/sites", adminOnly, site.CreateSiteHandler(sites))
	protected.Patch("/sites/:id", adminOnly, site.UpdateSiteHandler(sites))
	protected.Delete("/sites/:id", adminOnly, site.DeleteSiteHandler(sites))

	// Vendors
	protected.Get("/vendors", vendor.ListVendorsHandler(vendors))
	protected.Get("/vendors/:id", vendor.GetVendorHandler(vendors))
	protected.Post("/vendors", vendor.CreateVendorHandler(vendors))
	protected.Patch("/vendors/:id", vendor.UpdateVendorHandler(vendors))
	protected.Delete("/vendors/:id", adminOnly, vendor.DeleteVendorHandler(vendors))

	// Material catalog and stock snapshot
	protected.Get("/material-masters", material.ListMaterialsHandler(materials))
	protected.Get("/material-masters/:id", material.GetMaterialHandler(materials))
	protected.Post("/material-masters", adminOnly, material.CreateMaterialHandler(materials))
	protected.Patch("/material-masters/:id", adminOnly, material.UpdateMaterialHandler(materials))
	protected.Put("/material-masters/:id/site-allocations", adminOnly, material.SetSiteAllocationsHandler(materials))
	protected.Delete("/material-masters/:id", adminOnly, material.DeleteMaterialHandler(materials))
	protected.Post("/material-masters/:id/sync", reconcile.SyncMaterialHandler(engine))

	// Receipts; fixed paths before /:id
	protected.Get("/material-receipts", receipt.ListReceiptsHandler(ledger))
	protected.Get("/material-receipts/opening-balance", receipt.OpeningBalanceHandler(ledger))
	protected.Post("/material-receipts", receipt.CreateReceiptHandler(ledger))
	protected.Post("/material-receipts/batch", receipt.CreateBatchHandler(ledger))
	protected.Post("/material-receipts/import", receipt.ImportReceiptsHandler(ledger))
	protected.Get("/material-receipts/:id", receipt.GetReceiptHandler(ledger))
	protected.Patch("/material-receipts/:id", receipt.UpdateReceiptHandler(ledger, engine))
	protected.Delete("/material-receipts/:id", receipt.DeleteReceiptHandler(ledger))

	// Purchases
	protected.Get("/materials", reconcile.ListPurchasesHandler(book))
	protected.Post("/materials", reconcile.CreatePurchaseHandler(engine))
	protected.Get("/materials/:id", reconcile.GetPurchaseHandler(engine, book))
	protected.Patch("/materials/:id", reconcile.UpdatePurchaseHandler(engine))
	protected.Patch("/materials/:id/stock", reconcile.AdjustPurchaseStockHandler(engine))
	protected.Delete("/materials/:id", reconcile.DeletePurchaseHandler(engine))

	// Dashboard
	protected.Get("/dashboard/receipt-chart", dashboard.ReceiptChartHandler(rs))

	// Audit logs
	protected.Get("/audit-logs", adminOnly, audit.ListAuditLogsHandler(auditWriter))

	zlog.Info("server starting", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
