package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shared-canvas/backend/api/handlers"
	"github.com/shared-canvas/backend/internal/auth"
	"github.com/shared-canvas/backend/internal/board"
	"github.com/shared-canvas/backend/internal/config"
	"github.com/shared-canvas/backend/internal/db"
	"github.com/shared-canvas/backend/internal/discovery"
	"github.com/shared-canvas/backend/internal/mirror"
	"github.com/shared-canvas/backend/internal/model"
	"github.com/shared-canvas/backend/internal/repository"
	"github.com/shared-canvas/backend/internal/ws"
)

const (
	shutdownTimeout = 10 * time.Second
	mirrorPrefix    = "drawboard"
)

func newServeCmd(v *viper.Viper, load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().Int("port", 8080, "port to listen on")
	cmd.Flags().String("db-path", "data/boards.db", "SQLite database path")
	cmd.Flags().String("log-dir", "data/logs", "directory for board journals")
	cmd.Flags().String("redis-addr", "", "mirror accepted events to this Redis server")
	cmd.Flags().Bool("mdns", false, "advertise the relay on the local network")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd, v, map[string]string{
			"port":       config.KeyPort,
			"db-path":    config.KeyDBPath,
			"log-dir":    config.KeyLogDir,
			"redis-addr": config.KeyRedisAddr,
			"mdns":       config.KeyMDNS,
		})
	}

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	// Ensure data directories exist
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// Initialize database
	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.CloseDB()

	// Initialize repositories
	boardRepo := repository.NewBoardRepository(database)
	eventRepo := repository.NewEventRepository(database)

	// Initialize WebSocket service and board manager
	wsService := ws.NewService()
	boardManager := board.NewManager(boardRepo, eventRepo, wsService, board.Config{
		LogDir:           cfg.LogDir,
		MaxBoards:        cfg.MaxBoards,
		MaxBoardWidth:    cfg.MaxBoardWidth,
		MaxBoardHeight:   cfg.MaxBoardHeight,
		MaxStrokeWidth:   cfg.MaxStrokeWidth,
		CompactThreshold: cfg.CompactThreshold,
	})
	defer boardManager.Close()

	if _, err := boardManager.EnsureDefault(ctx, cfg.DefaultBoard, "Shared canvas", cfg.BoardWidth, cfg.BoardHeight); err != nil {
		return fmt.Errorf("failed to create default board: %w", err)
	}

	if cfg.RedisAddr != "" {
		m, err := mirror.New(ctx, &redis.Options{Addr: cfg.RedisAddr}, mirrorPrefix)
		if err != nil {
			// The relay works without the mirror
			log.Printf("Failed to connect to Redis at %s, mirror disabled: %v", cfg.RedisAddr, err)
		} else {
			defer m.Close()
			boardManager.AddSinkFactory(func(b *model.Board) ws.EventSink {
				return m.ForBoard(b.ID)
			})
			log.Printf("Mirroring accepted events to Redis at %s", cfg.RedisAddr)
		}
	}

	var issuer *auth.Issuer
	if cfg.AuthSecret != "" {
		issuer, err = auth.NewIssuer(cfg.AuthSecret, 0)
		if err != nil {
			return err
		}
		log.Println("Join tokens are required")
	}

	// Initialize handlers
	boardHandler := handlers.NewBoardHandler(boardManager)
	wsHandler := handlers.NewWebSocketHandler(boardManager, wsService.Handler(), issuer)

	// Initialize Gin router. Requests are logged by requestLogger.
	r := gin.New()
	r.Use(gin.Recovery())

	// Enable CORS for browser clients
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", boardHandler.Health)

	// API routes
	api := r.Group("/api")
	{
		boardHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	}

	if cfg.MDNS {
		// The TXT record is fixed at startup, so only the default board is listed.
		advertiser, err := discovery.Advertise(cfg.Port, []string{cfg.DefaultBoard})
		if err != nil {
			log.Printf("Failed to advertise over mDNS: %v", err)
		} else {
			defer advertiser.Shutdown()
		}
	}

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: requestLogger(r),
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shut down cleanly: %v", err)
		}
	}()

	// Start server
	log.Printf("Starting server on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// requestLogger logs every request with its status and duration. For a
// WebSocket attach the duration is the life of the connection.
func requestLogger(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(h, w, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, m.Code, m.Duration.Round(time.Millisecond))
	})
}

// corsMiddleware returns a CORS middleware for browser clients.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
