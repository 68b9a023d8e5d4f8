package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/ernie/arena-queue/internal/auth"
	"github.com/ernie/arena-queue/internal/config"
	"github.com/ernie/arena-queue/internal/domain"
	flag "github.com/spf13/pflag"
)

var baseURL = "http://localhost:8080"

// loadCLIConfigFromFlags loads config and derives the server URL, letting
// --url override it
func loadCLIConfigFromFlags(configPath, url string) *config.Config {
	cfg := loadConfig(configPath)
	if url != "" {
		baseURL = url
	} else {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	}
	return cfg
}

// cmdToken prints a signed token for a player
func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	admin := fs.Bool("admin", false, "grant operator routes")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: arenaq token [--admin] <player-id>")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	token, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration).GenerateToken(fs.Arg(0), *admin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

// cmdQueue drives a player's ticket through a running server
func cmdQueue(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: arenaq queue <status|join|leave> [options] <player-id>")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	url := fs.String("url", "", "base URL of the arenaq server")
	mode := fs.String("mode", "", "queue to join (default from server config)")
	tier := fs.Int("tier", 0, "skill tier")
	fs.Parse(args[1:])

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: player id required")
		os.Exit(1)
	}
	playerID := fs.Arg(0)

	cfg := loadCLIConfigFromFlags(*configPath, *url)
	token, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration).GenerateToken(playerID, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "status":
		var res domain.QueueResult
		err = doJSON(http.MethodGet, "/api/queue", token, nil, &res)
		if err == nil {
			printResult(playerID, res)
		}
	case "join":
		var res domain.QueueResult
		err = doJSON(http.MethodPost, "/api/queue", token, map[string]interface{}{"mode": *mode, "tier": *tier}, &res)
		if err == nil {
			printResult(playerID, res)
		}
	case "leave":
		var res map[string]bool
		err = doJSON(http.MethodDelete, "/api/queue", token, nil, &res)
		if err == nil {
			if res["cancelled"] {
				fmt.Printf("Cancelled ticket for %s\n", playerID)
			} else {
				fmt.Printf("%s had no queued ticket\n", playerID)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown queue command: %s\n", args[0])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printResult(playerID string, res domain.QueueResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAYER\tOUTCOME\tMODE\tTIER\tSCOPE\tOPPONENT\tMATCH")
	fmt.Fprintln(w, "------\t-------\t----\t----\t-----\t--------\t-----")
	fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
		playerID, res.Outcome, dash(res.Mode), res.Tier, dash(string(res.Scope)), dash(res.OpponentID), dash(res.MatchID))
	w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// doJSON sends an authenticated request. A forbidden enqueue still carries
// a result body, so 403 decodes like 200.
func doJSON(method, path, token string, body interface{}, target interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusForbidden {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}
