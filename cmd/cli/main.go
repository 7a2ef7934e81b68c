package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	rootCmd   = &cobra.Command{
		Use:   "velocity",
		Short: "Velocity CLI - media extraction and download jobs",
		Long:  `A command-line interface for the Velocity media extraction server.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (Bearer token)")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(clearCacheCmd)

	addCmd.Flags().Bool("merge", false, "Download best video and audio separately and merge")
	addCmd.Flags().String("format", "", "Explicit format id")
	addCmd.Flags().Int("max-height", 0, "Maximum video height")
	listCmd.Flags().String("state", "", "Filter by state")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func request(method, path string, payload interface{}) []byte {
	var body io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "Error: %s\n", string(data))
		os.Exit(1)
	}
	return data
}

var infoCmd = &cobra.Command{
	Use:   "info [url]",
	Short: "Look up video metadata",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body := request(http.MethodPost, "/info", map[string]string{"url": args[0]})

		var meta map[string]interface{}
		json.Unmarshal(body, &meta)

		fmt.Printf("Title:    %v\n", meta["title"])
		fmt.Printf("Uploader: %v\n", meta["uploader"])
		fmt.Printf("Duration: %v\n", meta["duration"])
		fmt.Printf("URL:      %v\n", meta["webpage_url"])
	},
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Start a download job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		merge, _ := cmd.Flags().GetBool("merge")
		formatID, _ := cmd.Flags().GetString("format")
		maxHeight, _ := cmd.Flags().GetInt("max-height")

		payload := map[string]interface{}{"url": args[0]}
		if merge {
			payload["merge"] = true
		}
		if formatID != "" {
			payload["format_id"] = formatID
		}
		if maxHeight > 0 {
			payload["max_height"] = maxHeight
		}

		body := request(http.MethodPost, "/download", payload)

		var job map[string]interface{}
		json.Unmarshal(body, &job)
		fmt.Printf("Job created!\n")
		fmt.Printf("ID:    %s\n", job["id"])
		fmt.Printf("State: %s\n", job["state"])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List download jobs",
	Run: func(cmd *cobra.Command, args []string) {
		state, _ := cmd.Flags().GetString("state")

		path := "/jobs"
		if state != "" {
			path += "?state=" + state
		}
		body := request(http.MethodGet, path, nil)

		var jobs []map[string]interface{}
		json.Unmarshal(body, &jobs)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tSTATE\tPROGRESS\tCREATED")
		for _, j := range jobs {
			req, _ := j["request"].(map[string]interface{})
			url := ""
			if req != nil {
				url, _ = req["url"].(string)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%s\n",
				truncate(str(j["id"]), 8),
				truncate(url, 40),
				j["state"],
				num(j["progress"])*100,
				j["created_at"])
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job statistics",
	Run: func(cmd *cobra.Command, args []string) {
		body := request(http.MethodGet, "/jobs/stats", nil)

		var stats map[string]interface{}
		json.Unmarshal(body, &stats)

		fmt.Println("Job Statistics:")
		fmt.Printf("  Total:     %v\n", stats["total"])
		fmt.Printf("  Queued:    %v\n", stats["queued"])
		fmt.Printf("  Running:   %v\n", stats["running"])
		fmt.Printf("  Merging:   %v\n", stats["merging"])
		fmt.Printf("  Completed: %v\n", stats["completed"])
		fmt.Printf("  Failed:    %v\n", stats["failed"])
		fmt.Printf("  Cancelled: %v\n", stats["cancelled"])
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get job details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body := request(http.MethodGet, "/download/"+args[0], nil)

		var job map[string]interface{}
		json.Unmarshal(body, &job)

		fmt.Printf("Job Details:\n")
		fmt.Printf("  ID:       %s\n", job["id"])
		fmt.Printf("  State:    %s\n", job["state"])
		fmt.Printf("  Progress: %.0f%%\n", num(job["progress"])*100)
		fmt.Printf("  Created:  %s\n", job["created_at"])
		if result, ok := job["result"].(map[string]interface{}); ok && result["file_path"] != nil {
			fmt.Printf("  File:     %s\n", result["file_path"])
		}
		if job["error_message"] != nil {
			fmt.Printf("  Error:    %s (%s)\n", job["error_message"], job["error_kind"])
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		request(http.MethodPost, "/download/"+args[0]+"/cancel", nil)
		fmt.Println("Cancellation requested")
	},
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Clear all cached lookup results",
	Run: func(cmd *cobra.Command, args []string) {
		request(http.MethodPost, "/cache/clear", nil)
		fmt.Println("Cache cleared")
	},
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
