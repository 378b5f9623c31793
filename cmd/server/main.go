package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"agentworld.ai/internal/persistence/indexdb"
	persistlog "agentworld.ai/internal/persistence/log"
	"agentworld.ai/internal/persistence/snapshot"
	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/regions"
	"agentworld.ai/internal/sim/tuning"
	"agentworld.ai/internal/sim/world"
	"agentworld.ai/internal/transport/ws"
)

func main() {
	var (
		addr      = flag.String("addr", ":8080", "http listen address")
		configDir = flag.String("configs", "./configs", "config directory")
		dataDir   = flag.String("data", "./data", "runtime data directory")
		seed      = flag.Int64("seed", 1337, "seed for per-region randomness (weather)")
		disableDB = flag.Bool("disable_db", false, "disable the sqlite event archive")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune := loadTuning(filepath.Join(*configDir, "tuning.yaml"), logger)
	worldCfg := loadWorld(filepath.Join(*configDir, "world.yaml"), logger)

	engine, err := world.New(world.Config{Tuning: tune, World: worldCfg, Seed: *seed})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	tickLog := persistlog.NewTickLogger(*dataDir)
	defer tickLog.Close()
	engine.SetTickLogger(tickLog)

	var archive *indexdb.SQLiteArchive
	if !*disableDB {
		archive, err = indexdb.Open(filepath.Join(*dataDir, "archive.db"))
		if err != nil {
			logger.Fatalf("open event archive: %v", err)
		}
		defer archive.Close()
		engine.SetEventArchive(archive)
	}

	snapDir := filepath.Join(*dataDir, "snapshots")
	snapCh := make(chan snapshot.SnapshotV1, 2)
	engine.SetSnapshotSink(snapCh)
	go snapshotWriter(snapDir, snapCh, archive, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("engine stopped: %v", err)
		}
		close(snapCh)
	}()

	auth := loadAuth(filepath.Join(*configDir, "tokens.yaml"), logger)
	wsServer := ws.NewServer(engine, auth, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsServer.Handler())
	mux.HandleFunc("/v1/state/", handleState(engine))
	mux.HandleFunc("/v1/replay", handleReplay(engine))
	mux.HandleFunc("/v1/history", handleHistory(archive))
	mux.HandleFunc("/v1/metrics", handleMetrics(engine))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (regions: %d)", *addr, len(worldCfg.Regions))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http: %v", err)
	}
}

func loadTuning(path string, logger *log.Logger) tuning.Tuning {
	t, err := tuning.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("no tuning.yaml, using defaults")
			return tuning.Default()
		}
		logger.Fatalf("tuning: %v", err)
	}
	return t
}

func loadWorld(path string, logger *log.Logger) regions.Config {
	c, err := regions.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("no world.yaml, using built-in world")
			return regions.Default()
		}
		logger.Fatalf("world config: %v", err)
	}
	return c
}

// tokens.yaml maps tokens to grants. Absent file means dev mode: every
// token is accepted.
func loadAuth(path string, logger *log.Logger) ws.Authenticator {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("no tokens.yaml, auth disabled (dev mode)")
			return ws.AllowAll{}
		}
		logger.Fatalf("tokens: %v", err)
	}
	var file struct {
		Tokens map[string]struct {
			Name    string   `yaml:"name"`
			Permits []string `yaml:"permits"`
		} `yaml:"tokens"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		logger.Fatalf("tokens.yaml: %v", err)
	}
	auth := ws.StaticTokens{Tokens: map[string]ws.Grant{}}
	for token, g := range file.Tokens {
		auth.Tokens[token] = ws.Grant{Name: g.Name, Permits: g.Permits}
	}
	return auth
}

func snapshotWriter(dir string, ch <-chan snapshot.SnapshotV1, archive *indexdb.SQLiteArchive, logger *log.Logger) {
	for snap := range ch {
		path, err := snapshot.Write(dir, snap)
		if err != nil {
			logger.Printf("snapshot write: %v", err)
			continue
		}
		agents := 0
		for _, r := range snap.Regions {
			agents += len(r.Agents)
		}
		archive.RecordSnapshot(path, snap.Header.Tick, len(snap.Regions), agents)
	}
}

func handleState(engine *world.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		region := strings.TrimPrefix(r.URL.Path, "/v1/state/")
		if region == "" {
			http.Error(w, "missing region", http.StatusBadRequest)
			return
		}
		// Tick-boundary cache first; fall through to the loop before the
		// first tick has run.
		if st, ok := engine.CachedState(region); ok {
			writeJSON(w, st)
			return
		}
		st, err := engine.QueryState(region)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, st)
	}
}

func handleReplay(engine *world.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		region := r.URL.Query().Get("region")
		if region == "" {
			http.Error(w, "missing region", http.StatusBadRequest)
			return
		}
		since, _ := strconv.ParseUint(r.URL.Query().Get("since_tick"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := engine.Replay(region, since, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if events == nil {
			events = []protocol.Event{}
		}
		writeJSON(w, protocol.ReplayMsg{
			Type:            protocol.TypeReplay,
			ProtocolVersion: protocol.Version,
			Region:          region,
			Events:          events,
		})
	}
}

// handleHistory serves archived events past the in-memory window.
func handleHistory(archive *indexdb.SQLiteArchive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if archive == nil {
			http.Error(w, "archive disabled", http.StatusServiceUnavailable)
			return
		}
		region := r.URL.Query().Get("region")
		if region == "" {
			http.Error(w, "missing region", http.StatusBadRequest)
			return
		}
		since, _ := strconv.ParseUint(r.URL.Query().Get("since_tick"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := archive.EventsSince(r.Context(), region, since, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []protocol.Event{}
		}
		writeJSON(w, protocol.ReplayMsg{
			Type:            protocol.TypeReplay,
			ProtocolVersion: protocol.Version,
			Region:          region,
			Events:          events,
		})
	}
}

func handleMetrics(engine *world.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, engine.Metrics())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
