// Package main implements the orcctl CLI for manual operations against
// the orchestrd HTTP server.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the orchestrd HTTP server
	serverURL string
	// stream enables SSE progress output for task submission
	stream bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "orcctl",
	Short: "CLI for orchestrd HTTP server operations",
	Long: `orcctl is a command-line interface for interacting with the orchestrd server.
It provides commands for submitting tasks and inspecting discovered agents and tools.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8800", "orchestrd server URL")
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(healthCmd)
}

// taskCmd submits a task and prints the aggregated result
var taskCmd = &cobra.Command{
	Use:   "task [description]",
	Short: "Submit a task for orchestration",
	Long: `Submit a natural-language task to orchestrd and print the result.

Examples:
  # Run a task and wait for the aggregate
  orcctl task "research the market and write a summary"

  # Stream lifecycle events while the task runs
  orcctl task --stream "research the market"

  # Read the task description from stdin
  echo "summarize the report" | orcctl task -`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

// agentsCmd lists discovered agents
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List discovered specialist agents",
	RunE:  runAgents,
}

// toolsCmd lists discovered tools
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List tools exposed by the configured providers",
	RunE:  runTools,
}

// refreshCmd forces a discovery round
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force an agent discovery round",
	RunE:  runRefresh,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check orchestrd server health",
	RunE:  runHealth,
}

func init() {
	taskCmd.Flags().BoolVar(&stream, "stream", false, "stream lifecycle events via SSE")
}

// TaskRequest matches internal/server/handlers.go TaskRequest
type TaskRequest struct {
	Task string `json:"task"`
}

func runTask(cmd *cobra.Command, args []string) error {
	description := args[0]
	if description == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		description = strings.TrimSpace(string(content))
	}
	if description == "" {
		return fmt.Errorf("task description is empty")
	}

	reqJSON, err := json.Marshal(TaskRequest{Task: description})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if stream {
		return streamTask(reqJSON)
	}

	// Synchronous submission holds the connection for the whole run,
	// so no client timeout here.
	client := &http.Client{}
	resp, err := client.Post(serverURL+"/api/v1/tasks", "application/json", bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	printJSON(body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("task did not complete")
	}
	return nil
}

// streamTask prints each SSE data frame as it arrives.
func streamTask(reqJSON []byte) error {
	client := &http.Client{}
	resp, err := client.Post(serverURL+"/api/v1/tasks/stream", "application/json", bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			fmt.Println(data)
		}
	}
	return scanner.Err()
}

func runAgents(cmd *cobra.Command, args []string) error {
	return getAndPrint("/api/v1/agents")
}

func runTools(cmd *cobra.Command, args []string) error {
	return getAndPrint("/api/v1/tools")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Post(serverURL+"/api/v1/discovery/refresh", "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	printJSON(body)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", serverURL, err)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	printJSON(body)
	return nil
}

func getAndPrint(path string) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	printJSON(body)
	return nil
}

// printJSON re-indents a JSON body for terminal output, falling back to
// raw bytes if it does not parse.
func printJSON(body []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(buf.String())
}
