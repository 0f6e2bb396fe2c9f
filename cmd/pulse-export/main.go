package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aadhaar_pulse/internal/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pulse-export",
		Short:        "Run the Aadhaar Pulse pipeline outside the service",
		SilenceUsage: true,
	}
	root.AddCommand(newExportCmd(), newTriggerCmd())
	return root
}

func newExportCmd() *cobra.Command {
	var dataDir, out string
	var pretty bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Process the CSV folders once and write the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := pipeline.ProcessAll(dataDir)
			if err != nil {
				return err
			}
			if out != "" && out != "-" {
				err = writeResultFile(out, res, pretty)
			} else {
				err = writeResult(cmd.OutOrStdout(), res, pretty)
			}
			if err != nil {
				return err
			}
			log.Printf("export: month=%s states=%d anomalies=%d out=%s", res.LatestMonth, len(res.States), len(res.Anomalies), firstNonEmpty(out, "stdout"))
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", envOr("DATA_DIR", "./data"), "directory holding the api_data_aadhar_* folders")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	return cmd
}

// writeResultFile writes the result to path and reports a failed close.
func writeResultFile(path string, res pipeline.Result, pretty bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("export: close %s: %w", path, cerr)
		}
	}()
	return writeResult(f, res, pretty)
}

func writeResult(w io.Writer, res pipeline.Result, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}

func newTriggerCmd() *cobra.Command {
	var baseURL string
	var force bool
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask a running service to recompute",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := requestRecompute(&http.Client{Timeout: 30 * time.Second}, baseURL, force)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(body))
			return err
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", envOr("SERVICE_BASE_URL", "http://localhost:8000"), "service base URL")
	cmd.Flags().BoolVar(&force, "force", false, "recompute even when the data is unchanged")
	return cmd
}

// requestRecompute posts to /ops/recompute and returns the queued job body.
func requestRecompute(client *http.Client, baseURL string, force bool) (string, error) {
	endpoint := strings.TrimSuffix(baseURL, "/") + "/ops/recompute"
	if force {
		endpoint += "?" + url.Values{"force": {"true"}}.Encode()
	}
	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(nil))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("recompute: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return string(b), nil
}

func envOr(key, fallback string) string {
	return firstNonEmpty(os.Getenv(key), fallback)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
