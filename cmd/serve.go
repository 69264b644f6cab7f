package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"golang.org/x/sync/errgroup"

	"poolwager/internal/config"
	"poolwager/internal/entropy"
	"poolwager/internal/handlers"
	"poolwager/internal/host"
	"poolwager/internal/models"
	"poolwager/internal/services"
	"poolwager/internal/store"
)

// ServeCmd runs the HTTP API. Flags override the config file.
type ServeCmd struct {
	Config       string  `kong:"default='poolwager.yaml',help='Config file (defaults apply when the default file is missing)'"`
	Addr         *string `kong:"help='Server address'"`
	Debug        bool    `kong:"help='Enable debug logging'"`
	MinimumStake *string `kong:"name='minimum-stake',help='Minimum stake in ether'"`
	Entropy      *string `kong:"help='Winner seed source: blockhash, seeded or crypto'"`
	Seed         *int64  `kong:"help='Seed for the seeded source and genesis accounts'"`
	Database     *string `kong:"help='SQLite receipt journal path'"`
}

func (c *ServeCmd) load() (config.Config, error) {
	cfg, err := config.Load(c.Config, c.Config == config.DefaultPath)
	if err != nil {
		return cfg, err
	}
	if c.Addr != nil {
		cfg.Addr = *c.Addr
	}
	if c.Debug {
		cfg.Debug = true
	}
	if c.MinimumStake != nil {
		cfg.MinimumStake = *c.MinimumStake
	}
	if c.Entropy != nil {
		cfg.Entropy = *c.Entropy
	}
	if c.Seed != nil {
		cfg.Seed = *c.Seed
	}
	if c.Database != nil {
		cfg.Database = *c.Database
	}
	return cfg, cfg.Validate()
}

func (c *ServeCmd) Run() error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	if cfg.Debug {
		logger.SetLevel(1)
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. Open the receipt journal
	journal, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer journal.Close()

	// 2. Initialize the host and the Lottery Service
	minimumStake, _ := cfg.MinimumStakeWei()
	source, err := entropy.Named(cfg.Entropy, cfg.Seed)
	if err != nil {
		return err
	}
	if entropy.BlockDerived(source) {
		logger.Warning("Winner selection uses block data; block producers can bias it")
	}
	h := host.New(
		host.WithJournal(journal),
		host.WithMinimumStake(minimumStake),
		host.WithEntropy(source),
	)
	lotteryService := services.NewLotteryService(h,
		services.WithReceiptStore(journal),
		services.WithRetention(cfg.ReceiptRetention),
		services.WithAccountSeed(cfg.Seed),
	)

	// 3. Fund the genesis accounts
	if cfg.Genesis.Accounts > 0 {
		funding, _ := cfg.GenesisFundingWei()
		accounts, err := lotteryService.ProvisionAccounts(cfg.Genesis.Accounts, funding)
		if err != nil {
			return err
		}
		for i, a := range accounts {
			logger.Infof("(%d) %s (%s ether)", i, a, models.FormatEther(funding))
		}
	}

	// 4. Set up the Gin router
	httpHandler := handlers.NewHTTPHandler(lotteryService)
	r := gin.Default()
	httpHandler.RegisterPublicRoutes(r)

	identityRoutes := r.Group("/")
	identityRoutes.Use(httpHandler.IdentityMiddleware())
	httpHandler.RegisterIdentityRoutes(identityRoutes)

	srv := &http.Server{Addr: cfg.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// 5. Run the server
	g.Go(func() error {
		logger.Infof("Server starting on %s (minimum stake %s ether)", cfg.Addr, cfg.MinimumStake)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 6. Start the background janitor to prune old receipts
	g.Go(func() error {
		return lotteryService.RunJanitor(ctx, cfg.PruneInterval)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
