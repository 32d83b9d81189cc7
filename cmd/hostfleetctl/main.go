// Command hostfleetctl is a thin CLI client for hostfleetd's admin HTTP
// API, mirroring the teacher's cmd/seed companion-binary pattern: a small,
// separately-built tool that talks to the running daemon rather than
// touching its internals directly.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:   "hostfleetctl",
		Short: "hostfleetctl — CLI client for the hostfleetd admin API",
	}
	root.PersistentFlags().StringVar(&addr, "addr", envOrDefault("HOSTFLEETCTL_ADDR", "http://localhost:8080"), "hostfleetd admin API base address")

	root.AddCommand(
		newStatusCmd(&addr),
		newHostsCmd(&addr),
		newRegisterCmd(&addr),
		newHealCmd(&addr),
		newRedistributeCmd(&addr),
		newCircuitCmd(&addr),
		newResetCircuitCmd(&addr),
	)
	return root
}

func newStatusCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show fleet-wide status (supervisor, circuit breaker, hosts)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(*addr, "/v1/status")
		},
	}
}

func newHostsCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List registered hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(*addr, "/v1/hosts")
		},
	}
}

func newRegisterCmd(addr *string) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new host",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			return postAndPrint(*addr, "/v1/hosts", map[string]any{"id": id})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "host id to register (required)")
	return cmd
}

func newHealCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "heal",
		Short: "Manually trigger the orphan reaper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint(*addr, "/v1/heal", nil)
		},
	}
}

func newRedistributeCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "redistribute",
		Short: "Manually trigger the redistributor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint(*addr, "/v1/redistribute", nil)
		},
	}
}

func newCircuitCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "circuit",
		Short: "Show the RPC circuit breaker's current record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(*addr, "/v1/circuit")
		},
	}
}

func newResetCircuitCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-circuit",
		Short: "Force the circuit breaker back to closed (test/ops only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint(*addr, "/v1/circuit/reset", nil)
		},
	}
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func getAndPrint(addr, path string) error {
	resp, err := httpClient.Get(addr + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func postAndPrint(addr, path string, body any) error {
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := httpClient.Post(addr+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	pretty, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}

	fmt.Println(string(pretty))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request returned status %d", resp.StatusCode)
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
