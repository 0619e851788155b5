// Package main is the entry point for the drive server.
//
// drive-server is a personal cloud storage backend: Google OAuth login,
// per-user storage quotas, a file/folder tree with a trash, batch uploads
// with image transcoding, and two-way sync of plain-text files with Google
// Docs. Configuration is read from CLI flags and a .env file in the data
// directory.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/wordcrafter/drive-server/internal/blob"
	"github.com/wordcrafter/drive-server/internal/docs"
	"github.com/wordcrafter/drive-server/internal/server"
	"github.com/wordcrafter/drive-server/internal/server/handlers"
	"github.com/wordcrafter/drive-server/internal/server/ipgeo"
	"github.com/wordcrafter/drive-server/internal/server/ratelimit"
	"github.com/wordcrafter/drive-server/internal/storage/drive"
	"github.com/wordcrafter/drive-server/internal/storage/identity"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "drive-server: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080)")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	baseURL := flag.String("base-url", "http://localhost", "Base URL for OAuth callbacks and signed download URLs")
	googleClientID := flag.String("google-client-id", "", "Google OAuth client ID")
	googleClientSecret := flag.String("google-client-secret", "", "Google OAuth client secret")
	geoDB := flag.String("geo-db", "", "Path to MaxMind MMDB file for IP geolocation (optional)")
	maxBody := flag.Int64("max-body-bytes", 64<<20, "Maximum request body size in bytes")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs (not useful in logs).
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Load .env for OAuth credentials and secrets.
	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["http"] {
		if v := env["HTTP"]; v != "" {
			*httpAddr = v
		}
	}
	if !set["base-url"] {
		if v := env["BASE_URL"]; v != "" {
			*baseURL = v
		}
	}
	if !set["google-client-id"] {
		if v := env["GOOGLE_CLIENT_ID"]; v != "" {
			*googleClientID = v
		}
	}
	if !set["google-client-secret"] {
		if v := env["GOOGLE_CLIENT_SECRET"]; v != "" {
			*googleClientSecret = v
		}
	}
	if !set["geo-db"] {
		if v := env["GEO_DB"]; v != "" {
			*geoDB = v
		}
	}
	if (*googleClientID == "") != (*googleClientSecret == "") {
		return errors.New("google-client-id and google-client-secret must both be set or both be empty")
	}

	// Secrets are generated on first run and persisted in .env so tokens and
	// signed URLs survive restarts.
	jwtSecret, changed1, err := ensureSecret(env, "JWT_SECRET")
	if err != nil {
		return err
	}
	blobKey, changed2, err := ensureSecret(env, "BLOB_SIGNING_KEY")
	if err != nil {
		return err
	}
	if changed1 || changed2 {
		if err := saveDotEnv(*dataDir, env); err != nil {
			return fmt.Errorf("failed to save .env file: %w", err)
		}
	}

	// Normalize addr: ":8080" becomes "localhost:8080".
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	// Append port to base URL if localhost and no port specified.
	if u, err := url.Parse(*baseURL); err == nil && u.Port() == "" && u.Hostname() == "localhost" {
		if _, p, err := net.SplitHostPort(addr); err == nil {
			u.Host = net.JoinHostPort(u.Hostname(), p)
			*baseURL = u.String()
		}
	}

	dbDir := filepath.Join(*dataDir, "db")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	userService, err := identity.NewUserService(filepath.Join(dbDir, "users.jsonl"))
	if err != nil {
		return fmt.Errorf("failed to initialize user service: %w", err)
	}
	sessionService, err := identity.NewSessionService(filepath.Join(dbDir, "sessions.jsonl"))
	if err != nil {
		return fmt.Errorf("failed to initialize session service: %w", err)
	}
	nodeService, err := drive.NewNodeService(filepath.Join(dbDir, "nodes.jsonl"))
	if err != nil {
		return fmt.Errorf("failed to initialize node service: %w", err)
	}
	quota := drive.NewQuotaLedger(userService)

	blobStore, err := blob.NewFSStore(filepath.Join(*dataDir, "blobs"), *baseURL, []byte(blobKey))
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	// Cleanup old expired sessions (older than 7 days past expiration).
	if count, err := sessionService.CleanupExpired(7 * 24 * 3600); err != nil {
		slog.WarnContext(ctx, "Failed to cleanup expired sessions", "error", err)
	} else if count > 0 {
		slog.InfoContext(ctx, "Cleaned up expired sessions", "count", count)
	}

	// OAuth provider and the Google Docs bridge. Both are disabled when no
	// OAuth credentials are configured.
	var provider identity.Provider
	var bridge *docs.Bridge
	var docProvisioner drive.DocProvisioner
	if *googleClientID != "" {
		gp := identity.NewGoogleProvider(*googleClientID, *googleClientSecret, *baseURL+"/api/auth/oauth/google/callback")
		provider = gp
		factory := func(ctx context.Context, accessToken, refreshToken string) docs.Service {
			return docs.NewClient(gp.HTTPClient(ctx, accessToken, refreshToken), "")
		}
		fetchers := func(ctx context.Context, accessToken, refreshToken string) docs.ImageFetcher {
			return docs.HTTPImageFetcher(gp.HTTPClient(ctx, accessToken, refreshToken))
		}
		bridge = docs.NewBridge(factory, fetchers)
		docProvisioner = bridge
	}

	uploadService := drive.NewUploadService(nodeService, quota, blobStore, docProvisioner, nil)

	var geoChecker *ipgeo.Checker
	if *geoDB != "" {
		geoChecker, err = ipgeo.Open(*geoDB)
		if err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		defer func() { _ = geoChecker.Close() }()
		slog.InfoContext(ctx, "IP geolocation enabled", "db", *geoDB)
	}

	// Watch own executable for modifications (for development restarts).
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	svc := &handlers.Services{
		User:     userService,
		Session:  sessionService,
		Nodes:    nodeService,
		Quota:    quota,
		Upload:   uploadService,
		Blobs:    blobStore,
		Bridge:   bridge,
		Provider: provider,
		Geo:      geoChecker,
	}
	buildVersion := getBuildVersion()
	cfg := &handlers.Config{
		JWTSecret:           jwtSecret,
		BaseURL:             *baseURL,
		Version:             buildVersion,
		MaxRequestBodyBytes: *maxBody,
	}
	limiters := ratelimit.DefaultConfig()
	defer limiters.Close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, cfg, limiters, blobStore),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "baseURL", *baseURL, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func printVersion() {
	fmt.Printf("drive-server %s\n", getBuildVersion())
}

func getBuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	v := info.Main.Version
	if v == "" || v == "(devel)" {
		v = "dev"
	}
	return v
}

// ensureSecret returns env[key], generating and storing a new random secret
// when it is missing. The second return reports whether env was modified.
func ensureSecret(env map[string]string, key string) (string, bool, error) {
	if v := env[key]; v != "" {
		return v, false, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", false, fmt.Errorf("failed to generate %s: %w", key, err)
	}
	v := hex.EncodeToString(b)
	env[key] = v
	return v, true, nil
}

func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	envContent, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}

	for line := range strings.SplitSeq(string(envContent), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}

func saveDotEnv(dataDir string, env map[string]string) error {
	path := filepath.Join(dataDir, ".env")
	var lines []string
	for k, v := range env {
		if v != "" {
			lines = append(lines, fmt.Sprintf("%s=%s", k, v))
		}
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)
}

// watchExecutable watches the current executable for modifications and calls
// stop to trigger graceful shutdown when detected. This enables seamless
// restarts during development.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
