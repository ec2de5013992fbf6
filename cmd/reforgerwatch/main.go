// reforgerwatch - Arma Reforger server statistics and leaderboard daemon
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/reforgerwatch/reforgerwatch/internal/api"
	"github.com/reforgerwatch/reforgerwatch/internal/auth"
	"github.com/reforgerwatch/reforgerwatch/internal/bus"
	"github.com/reforgerwatch/reforgerwatch/internal/collector"
	"github.com/reforgerwatch/reforgerwatch/internal/config"
	"github.com/reforgerwatch/reforgerwatch/internal/remote"
	"github.com/reforgerwatch/reforgerwatch/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/etc/reforgerwatch/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "leaderboard":
		cmdLeaderboard(os.Args[2:])
	case "players":
		cmdPlayers(os.Args[2:])
	case "refresh":
		cmdRefresh(os.Args[2:])
	case "user":
		cmdUser(os.Args[2:])
	case "version":
		fmt.Printf("reforgerwatch %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: reforgerwatch <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                       Start the watch daemon")
	fmt.Println("  status                      Show the current server snapshot")
	fmt.Println("  leaderboard                 Show the top killers")
	fmt.Println("  players                     Show all known player records")
	fmt.Println("  refresh [--token T]         Trigger a manual refresh cycle")
	fmt.Println("  user add [--admin] <name>   Add an API user (prompts for password)")
	fmt.Println("  user remove <name>          Remove an API user")
	fmt.Println("  user list                   List API users")
	fmt.Println("  version                     Show version")
}

// loadConfig resolves and loads the config file for a subcommand
func loadConfig(path string) *config.Config {
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify one.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// cmdServe starts the daemon
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("reforgerwatch %s starting...", version)
	log.Printf("Watching %s (query %s)", cfg.Server.GameAddress(), cfg.Server.QueryAddress())

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	log.Printf("Database initialized at %s", cfg.Database.Path)

	eventBus, err := bus.Start(cfg.Bus.ListenAddr, cfg.Bus.Port)
	if err != nil {
		log.Fatalf("Failed to start event bus: %v", err)
	}
	defer eventBus.Close()
	log.Printf("Event bus listening at %s", eventBus.ClientURL())

	files := remote.NewManager(cfg.Remote)
	defer files.Close()

	query := collector.NewA2SClient(cfg.Server.QueryTimeout)
	engine := collector.NewEngine(cfg, store, files, query, eventBus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Start(ctx)

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		log.Printf("Warning: No JWT secret configured. Auth tokens will use an empty secret.")
	}

	router := api.NewRouter(store, engine, authService)
	if err := router.StartWebSocketHub(eventBus); err != nil {
		log.Fatalf("Failed to start WebSocket hub: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.API.ListenAddr, cfg.API.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Println("Shutting down HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Stopping engine...")
	engine.Stop()

	cancel()
	log.Println("Shutdown complete")
}

// apiBase returns the daemon's API base URL from the config
func apiBase(cfg *config.Config) string {
	return fmt.Sprintf("http://%s:%d", cfg.API.ListenAddr, cfg.API.HTTPPort)
}

// cmdStatus prints the current snapshot from a running daemon
func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	resp, err := http.Get(apiBase(cfg) + "/api/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: is the daemon running? %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var snap struct {
		State struct {
			Online     bool   `json:"online"`
			Name       string `json:"name"`
			Players    int    `json:"players"`
			MaxPlayers int    `json:"max_players"`
			Map        string `json:"map"`
			Address    string `json:"address"`
			Uptime     string `json:"uptime"`
		} `json:"state"`
		NextRefreshSeconds int `json:"next_refresh_seconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding response: %v\n", err)
		os.Exit(1)
	}

	status := "Offline"
	if snap.State.Online {
		status = "Online"
	}
	fmt.Printf("%s\n", snap.State.Name)
	fmt.Printf("  Status:  %s\n", status)
	fmt.Printf("  Players: %d/%d\n", snap.State.Players, snap.State.MaxPlayers)
	fmt.Printf("  Map:     %s\n", snap.State.Map)
	fmt.Printf("  Address: %s\n", snap.State.Address)
	fmt.Printf("  Uptime:  %s\n", snap.State.Uptime)
	fmt.Printf("  Next refresh in %ds\n", snap.NextRefreshSeconds)
}

// cmdLeaderboard prints the persisted top killers
func cmdLeaderboard(args []string) {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	entries, err := store.GetTopKillers(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tNAME\tKILLS\tLAST KILL")
	rank := 0
	for _, entry := range entries {
		if entry.IsPlaceholder() {
			continue
		}
		rank++
		lastKill := "never"
		if entry.LastKill != nil {
			lastKill = entry.LastKill.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", rank, entry.Name, entry.Kills, lastKill)
	}
	w.Flush()
	if rank == 0 {
		fmt.Println("No players with kills found")
	}
}

// cmdPlayers prints all known player records
func cmdPlayers(args []string) {
	fs := flag.NewFlagSet("players", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	records, err := store.ListPlayers(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tGUID\tKILLS\tLAST UPDATED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", rec.Name, rec.GUID, rec.Kills,
			rec.LastUpdated.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}

// cmdRefresh triggers a manual refresh on a running daemon
func cmdRefresh(args []string) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	token := fs.String("token", "", "API token")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	req, err := http.NewRequest(http.MethodPost, apiBase(cfg)+"/api/refresh", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: is the daemon running? %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Refresh failed (%s): %s\n", resp.Status, strings.TrimSpace(string(body)))
		os.Exit(1)
	}
	fmt.Println("Refresh triggered")
}

// cmdUser dispatches user subcommands
func cmdUser(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: user subcommand required: add, remove, list\n")
		os.Exit(1)
	}

	switch args[0] {
	case "add":
		cmdUserAdd(args[1:])
	case "remove":
		cmdUserRemove(args[1:])
	case "list":
		cmdUserList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown user command: %s (use: add, remove, list)\n", args[0])
		os.Exit(1)
	}
}

// promptPassword reads a password from the terminal without echo
func promptPassword() (string, error) {
	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(password) == 0 {
		return "", fmt.Errorf("password must not be empty")
	}
	return string(password), nil
}

func cmdUserAdd(args []string) {
	fs := flag.NewFlagSet("user add", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	admin := fs.Bool("admin", false, "grant admin access")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: reforgerwatch user add [--admin] <username>\n")
		os.Exit(1)
	}
	username := remaining[0]

	password, err := promptPassword()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.CreateUser(context.Background(), username, hash, *admin); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("User %s created\n", username)
}

func cmdUserRemove(args []string) {
	fs := flag.NewFlagSet("user remove", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: reforgerwatch user remove <username>\n")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.DeleteUser(context.Background(), remaining[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("User %s removed\n", remaining[0])
}

func cmdUserList(args []string) {
	fs := flag.NewFlagSet("user list", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	users, err := store.ListUsers(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tADMIN\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%v\t%s\n", u.Username, u.IsAdmin, u.CreatedAt.Local().Format("2006-01-02"))
	}
	w.Flush()
}
