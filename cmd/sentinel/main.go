// Command sentinel is the operator CLI for a running sentineld daemon.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sentinel", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", envOr("SENTINEL_URL", "http://localhost:8080"), "daemon base URL")
	token := fs.String("token", os.Getenv("SENTINEL_TOKEN"), "bearer token")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr)
		return 2
	}

	c := &client{base: *url, token: *token, http: &http.Client{Timeout: 15 * time.Second}}

	switch rest[0] {
	case "health":
		return c.get(stdout, stderr, "/health")
	case "vaults":
		return c.get(stdout, stderr, "/vaults")
	case "vault":
		if len(rest) < 2 {
			fmt.Fprintln(stderr, "Usage: sentinel vault <owner-id>")
			return 2
		}
		return c.get(stdout, stderr, "/vaults/"+rest[1])
	case "register":
		if len(rest) < 2 {
			fmt.Fprintln(stderr, "Usage: sentinel register <owner-id>")
			return 2
		}
		return c.register(stdout, stderr, rest[1])
	default:
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: sentinel [-url URL] [-token TOKEN] <command>")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  health               daemon health check")
	fmt.Fprintln(w, "  vaults               list watched vaults")
	fmt.Fprintln(w, "  vault <owner-id>     show one vault")
	fmt.Fprintln(w, "  register <owner-id>  add a vault to the watchlist")
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) get(stdout, stderr io.Writer, path string) int {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return c.do(stdout, stderr, req)
}

func (c *client) register(stdout, stderr io.Writer, ownerID string) int {
	body, _ := json.Marshal(map[string]string{"owner_id": ownerID})
	req, err := http.NewRequest(http.MethodPost, c.base+"/register-vault", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(stdout, stderr, req)
}

func (c *client) do(stdout, stderr io.Writer, req *http.Request) int {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	// Re-indent JSON responses for the terminal.
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Fprintln(stdout, pretty.String())
	} else {
		fmt.Fprintln(stdout, string(raw))
	}

	if resp.StatusCode >= 400 {
		fmt.Fprintf(stderr, "request failed: %s\n", resp.Status)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
