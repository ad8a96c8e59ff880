package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/codyseavey/ygo-ripper/internal/config"
	"github.com/codyseavey/ygo-ripper/internal/database"
	"github.com/codyseavey/ygo-ripper/internal/services"
	"github.com/codyseavey/ygo-ripper/internal/storage"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error

	servicesOnce sync.Once
	servicesErr  error
	db           *gorm.DB
	store        storage.Store
	client       *services.PricingClient
	prices       *services.PriceLookupService
	images       *services.ImageStoreService
	sessions     *services.PackSessionService

	metricsServer *http.Server
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the file named by --config and the environment
func (c *commandContext) ensureConfig(ctx context.Context) (config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// ensureServices opens the database and builds the services. Settings saved
// with `config save` are applied over the loaded configuration.
func (c *commandContext) ensureServices(ctx context.Context) error {
	c.servicesOnce.Do(func() {
		cfg, err := c.ensureConfig(ctx)
		if err != nil {
			c.servicesErr = err
			return
		}
		if err := database.Initialize(cfg.DatabasePath); err != nil {
			c.servicesErr = fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
			return
		}
		c.db = database.GetDB()
		c.store = storage.NewDBStore(c.db)

		cfg, err = config.LoadSettings(ctx, c.store, cfg)
		if err != nil {
			log.Printf("[CONFIG] Ignoring saved settings: %v", err)
		}
		c.config = cfg

		c.client = services.NewPricingClient(cfg.APIURL, cfg.RequestTimeout())
		c.prices = services.NewPriceLookupService(cfg, c.client, c.store)
		c.prices.Initialize(ctx)
		c.images = services.NewImageStoreService(cfg.Image, c.client, c.store)
		c.sessions = services.NewPackSessionService(c.db)
	})
	return c.servicesErr
}

// close flushes the price cache and releases the database
func (c *commandContext) close(ctx context.Context) error {
	if c.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[METRICS] Shutdown error: %v", err)
		}
	}
	if c.prices != nil {
		c.prices.Flush(ctx)
	}
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// startMetrics serves /metrics in the background until close
func (c *commandContext) startMetrics(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	c.metricsServer = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := c.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[METRICS] Server stopped: %v", err)
		}
	}()
	log.Printf("[METRICS] Serving on %s/metrics", addr)
	return nil
}
