// The stockline client: logs in, mirrors the server datasets into a local
// cache and keeps it current until interrupted.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	clientsync "github.com/stocklinehq/stockline/internal/client/sync"
	"github.com/stocklinehq/stockline/pkg/api"
)

func main() {
	serverURL := flag.String("server", envOr("STOCKLINE_SERVER", "http://localhost:8080"), "server base URL")
	username := flag.String("user", "", "username")
	cachePath := flag.String("cache", envOr("STOCKLINE_CACHE", "stockline-cache.db"), "path to the local mirror database")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *username == "" {
		fmt.Fprintln(os.Stderr, "usage: stockline-client -user <username> [-server URL]")
		os.Exit(2)
	}

	if err := run(logger, *serverURL, *username, *cachePath); err != nil {
		logger.Error("client failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, serverURL, username, cachePath string) error {
	password, err := readPassword(username)
	if err != nil {
		return err
	}

	token, err := login(serverURL, username, password)
	if err != nil {
		return err
	}
	logger.Info("logged in", "username", username)

	cache, err := clientsync.NewCache(cachePath)
	if err != nil {
		return err
	}
	defer cache.Close()

	hostname, _ := os.Hostname()
	client := clientsync.NewClient(logger, cache, wsURL(serverURL), token, api.DeviceInfo{
		Platform:   runtime.GOOS,
		AppVersion: "dev",
		Hostname:   hostname,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return client.Run(ctx)
}

// readPassword prompts on the terminal without echo; falls back to a plain
// line read when stdin is not a TTY (pipes in scripts).
func readPassword(username string) (string, error) {
	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		defer fmt.Fprintln(os.Stderr)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func login(serverURL, username, password string) (string, error) {
	body, err := json.Marshal(api.LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to encode login request: %w", err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Post(serverURL+"/api/v1/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login rejected: %s", resp.Status)
	}

	var loginResp api.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	return loginResp.AccessToken, nil
}

// wsURL converts the HTTP base URL to the WebSocket endpoint.
func wsURL(serverURL string) string {
	ws := strings.Replace(serverURL, "http://", "ws://", 1)
	ws = strings.Replace(ws, "https://", "wss://", 1)
	return strings.TrimRight(ws, "/") + "/sync"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
