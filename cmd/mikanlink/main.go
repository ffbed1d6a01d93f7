package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mikanlink/internal/api"
	"mikanlink/pkg/bridge"
	"mikanlink/pkg/capture"
	"mikanlink/pkg/config"
	"mikanlink/pkg/core"
	"mikanlink/pkg/db"
	"mikanlink/pkg/db/maintenance"
	"mikanlink/pkg/logging"
	"mikanlink/pkg/mikan"
	"mikanlink/pkg/probe"
	"mikanlink/pkg/scene"
	"mikanlink/pkg/store"
	"mikanlink/pkg/tracker"
	"mikanlink/pkg/version"
	"mikanlink/pkg/world"
)

const defaultConfigPath = "configs/mikanlink.yaml"

var (
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	// Optional: MIKAN_URL / MIKAN_PROVIDER may come from .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("mikanlink Started", "version", version.Version)

	lock := newInstanceLock(appCfg.DB.Path)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	cfgProv := config.NewProvider(appCfg, st)
	tr := tracker.New()

	if err := probe.AnalyzeResults(probe.Run(ctx, startupProbes(cfgProv, dbConn))); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	client := initializeMikanClient(ctx, appCfg, cfgProv.MikanProvider(ctx))
	if err := client.Initialize(mikan.LogInfo, logging.MikanLogCallback); err != nil {
		return fmt.Errorf("failed to initialize mikan client: %w", err)
	}

	app, err := assemble(ctx, appCfg, cfgProv, client, st, tr)
	if err != nil {
		return err
	}
	defer app.camera.Close()

	status := api.NewStatusHandler()
	sched := setupScheduler(cfgProv, app, dbConn, st, tr, status)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Start(ctx)
	}()

	runErr := runServer(ctx, appCfg, cfgProv, sched, app, st, status)

	// The scheduler owns bridge and scene state; tear down only after it exits.
	cancel()
	<-schedDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	app.world.FreeRenderBuffers(shutdownCtx)
	if err := app.bridge.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Bridge shutdown failed", "error", err)
	}
	return runErr
}

// components are the tick-goroutine owned parts of a running client.
type components struct {
	bridge *bridge.Module
	world  *world.Subsystem
	scene  *scene.Scene
	camera *capture.Camera
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

// startupProbes checks the database and, for the websocket provider, that the
// compositor is reachable. An unreachable compositor is not fatal: the bridge
// keeps retrying.
func startupProbes(cfgProv config.Provider, dbConn *db.DB) []probe.Probe {
	probes := []probe.Probe{
		{Name: "Database", Check: probe.Database(dbConn), Critical: true},
	}
	if cfgProv.MikanProvider(context.Background()) == config.ProviderWebSocket {
		cfg := cfgProv.AppConfig()
		probes = append(probes, probe.Probe{
			Name:    "Compositor",
			Check:   probe.Compositor(cfg.Mikan.URL),
			Timeout: cfg.Mikan.RequestTimeout.Std(),
		})
	}
	return probes
}

func assemble(ctx context.Context, appCfg *config.Config, cfgProv config.Provider, client mikan.Client, st store.Store, tr *tracker.Tracker) (*components, error) {
	graphicsAPI := mikan.ParseGraphicsAPI(appCfg.Mikan.GraphicsAPI)
	if graphicsAPI == mikan.GraphicsUnknown {
		slog.Warn("Unknown graphics API, frames will not be published", "graphics_api", appCfg.Mikan.GraphicsAPI)
	}

	mod := bridge.New(client, bridge.Options{
		ClientInfo: mikan.ClientInfo{
			EngineName:         "mikanlink",
			EngineVersion:      version.Version,
			ApplicationName:    appCfg.Mikan.ApplicationName,
			ApplicationVersion: version.Version,
			GraphicsAPI:        graphicsAPI,
			SupportedFeatures:  mikan.FeatureRenderTargetBGRA32,
		},
		ReconnectInterval: cfgProv.ReconnectInterval(ctx),
	}, tr)

	cam, err := capture.NewCamera(capture.NewMemoryBackend(), client, capture.Options{
		PublishWorkers: appCfg.Capture.PublishWorkers,
	}, tr)
	if err != nil {
		return nil, fmt.Errorf("failed to create camera: %w", err)
	}

	sc := scene.New(client, cam, st, scene.Options{
		OriginAnchor:  cfgProv.OriginAnchorName(ctx),
		Scale:         cfgProv.SceneScale(ctx),
		MetersToUnits: cfgProv.MetersToUnits(ctx),
	})

	w := world.New(client, mod, graphicsAPI)
	w.BindScene(sc, cam)
	w.OnMessageHook(func(_ context.Context, message string) {
		slog.Info("Script message received", "message", message)
	})
	mod.Register(w)

	return &components{bridge: mod, world: w, scene: sc, camera: cam}, nil
}

func setupScheduler(cfgProv config.Provider, app *components, dbConn *db.DB, st store.Store, tr *tracker.Tracker, status *api.StatusHandler) *core.Scheduler {
	sched := core.NewScheduler(cfgProv.TickInterval(context.Background()), app.bridge)

	// Status snapshot for the HTTP API (4Hz)
	sched.AddJob(core.NewTimeJob("StatusPublish", 250*time.Millisecond, func(context.Context) {
		status.Update(api.CollectStatus(app.bridge, app.world, tr))
	}))

	// Database maintenance (daily, off the tick goroutine)
	sched.AddJob(core.NewBackgroundJob("Maintenance", 24*time.Hour, func(c context.Context) {
		if err := maintenance.Run(c, st, dbConn, cfgProv.AppConfig().DB.SnapshotRetention.Std()); err != nil {
			slog.Error("Maintenance tasks failed", "error", err)
		}
	}))

	return sched
}

func runServer(ctx context.Context, cfg *config.Config, cfgProv config.Provider, sched *core.Scheduler, app *components, st store.Store, status *api.StatusHandler) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	scriptH := api.NewScriptHandler(sched, app.world)
	app.world.OnMessageHook(scriptH.Deliver)

	srv := api.NewServer(cfg.Server.Address, api.Handlers{
		Status:   status,
		Anchors:  api.NewAnchorHandler(status, st),
		Settings: api.NewSettingsHandler(cfgProv, sched, app.scene),
		Script:   scriptH,
	}, shutdownFunc)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	logger := slog.Default().With("component", "http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Trace(logger, "Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
