package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	apppkg "github.com/mark3748/hwtrack-go/cmd/api/app"
	assetspkg "github.com/mark3748/hwtrack-go/cmd/api/assets"
	authpkg "github.com/mark3748/hwtrack-go/cmd/api/auth"
	employeespkg "github.com/mark3748/hwtrack-go/cmd/api/employees"
	eventspkg "github.com/mark3748/hwtrack-go/cmd/api/events"
	wspkg "github.com/mark3748/hwtrack-go/cmd/api/ws"
	ratelimitpkg "github.com/mark3748/hwtrack-go/internal/ratelimit"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	_ = godotenv.Load()
	cfg := apppkg.GetConfig()
	var logOut io.Writer = os.Stdout
	if cfg.LogPath != "" {
		if err := os.MkdirAll(cfg.LogPath, 0o755); err == nil {
			if f, err := os.OpenFile(filepath.Join(cfg.LogPath, "api.log"),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				logOut = zerolog.MultiLevelWriter(os.Stdout, f)
			}
		}
	}
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: logOut, TimeFormat: time.RFC3339})
		gin.SetMode(gin.DebugMode)
	} else {
		log.Logger = log.Output(logOut)
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()

	// Migrate (embedded goose) using pgx stdlib driver
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal().Err(err).Msg("goose dialect")
	}
	sqldb, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("sql open for goose")
	}
	defer sqldb.Close()
	if err := goose.UpContext(ctx, sqldb, "migrations"); err != nil {
		log.Fatal().Err(err).Msg("migrate up")
	}

	// JWKS-backed Keyfunc for OIDC mode
	var keyf jwt.Keyfunc
	if cfg.JWKSURL != "" {
		httpClient := &http.Client{Timeout: 10 * time.Second}
		set, err := jwk.Fetch(ctx, cfg.JWKSURL, jwk.WithHTTPClient(httpClient))
		if err != nil {
			log.Fatal().Err(err).Str("jwks_url", cfg.JWKSURL).Msg("fetch jwks")
		}
		setPtr := &set
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				if newSet, err := jwk.Fetch(context.Background(), cfg.JWKSURL, jwk.WithHTTPClient(httpClient)); err == nil {
					*setPtr = newSet
				}
			}
		}()
		keyf = func(t *jwt.Token) (interface{}, error) {
			kid, _ := t.Header["kid"].(string)
			if kid != "" {
				if key, ok := (*setPtr).LookupKeyID(kid); ok {
					var pub any
					if err := key.Raw(&pub); err != nil {
						return nil, err
					}
					return pub, nil
				}
			}
			// fallback: use the first key in the set
			it := (*setPtr).Iterate(context.Background())
			if it.Next(context.Background()) {
				pair := it.Pair()
				if key, ok := pair.Value.(jwk.Key); ok {
					var pub any
					if err := key.Raw(&pub); err != nil {
						return nil, err
					}
					return pub, nil
				}
			}
			return nil, fmt.Errorf("no jwk for kid: %s", kid)
		}
	}

	var mc *minio.Client
	if cfg.MinIOEndpoint != "" {
		mc, err = minio.New(cfg.MinIOEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccess, cfg.MinIOSecret, ""),
			Secure: cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("minio init")
		}
	}

	// Redis client (optional)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("redis ping")
		}
		defer rdb.Close()
	}

	var store apppkg.ObjectStore
	if mc != nil {
		store = mc
	} else if cfg.FileStorePath != "" {
		if err := os.MkdirAll(cfg.FileStorePath, 0o755); err != nil {
			log.Fatal().Err(err).Str("path", cfg.FileStorePath).Msg("create filestore path")
		}
		store = &apppkg.FsObjectStore{Base: cfg.FileStorePath}
	}

	// Seed a dev admin for local auth
	if cfg.AuthMode == "local" && cfg.Env == "dev" {
		if err := seedLocalAdmin(ctx, pool, cfg.AdminPassword); err != nil {
			log.Error().Err(err).Msg("seed local admin")
		}
	}

	a := apppkg.NewApp(cfg, pool, keyf, store, rdb)

	hub := wspkg.NewHub(rdb)
	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go hub.Run(hubCtx)

	registerRoutes(a, hub, rdb)

	srv := &http.Server{
		Addr:           cfg.Addr,
		Handler:        a.R,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	log.Info().Str("addr", cfg.Addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("listen")
	}
}

func registerRoutes(a *apppkg.App, hub *wspkg.Hub, rdb *redis.Client) {
	a.R.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	a.R.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if a.Cfg.AuthMode == "local" {
		a.R.POST("/login", authpkg.Login(a))
		a.R.POST("/logout", authpkg.Logout())
	}

	auth := a.R.Group("/")
	auth.Use(authpkg.Middleware(a))
	if rdb != nil && a.Cfg.RateLimitRPS > 0 {
		rl := ratelimitpkg.New(rdb, int(a.Cfg.RateLimitRPS), time.Second, "api")
		auth.Use(rl.Middleware(func(c *gin.Context) string { return c.ClientIP() }))
	}

	auth.GET("/me", authpkg.Me)

	// Assets
	auth.GET("/assets", assetspkg.ListAssets(a))
	auth.POST("/assets", authpkg.RequireRole("agent"), assetspkg.CreateAsset(a))
	auth.GET("/assets/transitions", assetspkg.ListTransitions(a))
	auth.GET("/assets/:id", assetspkg.GetAsset(a))
	auth.PATCH("/assets/:id", authpkg.RequireRole("agent"), assetspkg.UpdateAsset(a))
	auth.DELETE("/assets/:id", authpkg.RequireRole("agent"), assetspkg.DeleteAsset(a))
	auth.GET("/assets/:id/history", assetspkg.GetAssetHistory(a))
	auth.GET("/assets/:id/attachments", assetspkg.ListAttachments(a))
	auth.POST("/assets/:id/attachments", authpkg.RequireRole("agent"), assetspkg.UploadAttachment(a))
	auth.GET("/assets/:id/attachments/:attID", assetspkg.DownloadAttachment(a))
	auth.DELETE("/assets/:id/attachments/:attID", authpkg.RequireRole("agent"), assetspkg.DeleteAttachment(a))

	// Employees
	auth.GET("/employees", employeespkg.List(a))
	auth.POST("/employees", authpkg.RequireRole("agent"), employeespkg.Create(a))
	auth.GET("/employees/:id", employeespkg.Get(a))
	auth.PATCH("/employees/:id", authpkg.RequireRole("agent"), employeespkg.Update(a))
	auth.DELETE("/employees/:id", authpkg.RequireRole("admin"), employeespkg.Delete(a))

	// Live updates
	auth.GET("/events", eventspkg.Stream(a))
	auth.GET("/ws", func(c *gin.Context) {
		conn, err := wspkg.Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := wspkg.NewClient(hub, conn)
		hub.Register(client)
		go client.WritePump(c.Request.Context())
		client.ReadPump()
	})
}

// seedLocalAdmin ensures a dev admin employee exists for local auth mode.
func seedLocalAdmin(ctx context.Context, pool *pgxpool.Pool, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	const q = `
		insert into employees (name, email, role, password_hash, job_status, work_style, current_address)
		values ('Admin', 'admin@local', 'admin', $1, 'Active', 'Onsite', 'Main Office')
		on conflict (email) do nothing`
	_, err = pool.Exec(ctx, q, string(hash))
	return err
}
