package main

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ammarsys/captchaAPI/internal/captcha"
	"github.com/ammarsys/captchaAPI/internal/config"
	"github.com/ammarsys/captchaAPI/internal/httpapi"
	"github.com/ammarsys/captchaAPI/internal/logging"
	"github.com/ammarsys/captchaAPI/internal/render"
	"github.com/ammarsys/captchaAPI/internal/store"
)

func main() {
	logging.Init(config.AppName)

	// 1) Config
	cfg, err := config.Load()
	if err != nil {
		logging.Logger.WithError(err).Fatal("Failed to load config")
	}

	// 2) Record stores: Redis when an address is configured, in-process otherwise
	images, solutions := buildStores(cfg)

	// 3) Render pipeline
	pipeline, err := render.NewPipeline(render.Config{
		Width:           cfg.Width,
		Height:          cfg.Height,
		FontSize:        cfg.FontSize,
		MaxRotationDeg:  cfg.MaxRotationDeg,
		SaltProbability: cfg.SaltProbability,
		Background:      cfg.Background,
		TextColor:       cfg.TextColor,
	})
	if err != nil {
		logging.Logger.WithError(err).Fatal("Failed to build render pipeline")
	}

	// 4) Challenge engine
	engine := captcha.NewEngine(images, solutions, pipeline, cfg.TTL, cfg.Alphabet)

	// 5) HTTP server
	srv := httpapi.NewServer(engine, httpapi.Options{
		IssuePerMin:    cfg.IssuePerMin,
		CDNPerMin:      cfg.CDNPerMin,
		CheckPerMin:    cfg.CheckPerMin,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	defer srv.Close()

	addr := ":" + cfg.AppPort
	logging.Logger.Infof("Listening on %s", addr)
	logging.Logger.Fatal(http.ListenAndServe(addr, srv.Handler()))
}

// buildStores picks the record backend. Without Redis the records live in
// process memory with a background sweep, which is fine for a single node.
func buildStores(cfg *config.Config) (store.Store[captcha.ImageRecord], store.Store[captcha.SolutionRecord]) {
	if cfg.RedisAddr == "" {
		logging.Logger.Info("Using in-process record stores")
		return store.NewMemoryWithJanitor[captcha.ImageRecord](time.Minute),
			store.NewMemoryWithJanitor[captcha.SolutionRecord](time.Minute)
	}

	logging.Logger.Infof("Using Redis record stores at %s", cfg.RedisAddr)
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return store.NewRedis[captcha.ImageRecord](client, "captcha:cdn"),
		store.NewRedis[captcha.SolutionRecord](client, "captcha:solution")
}
