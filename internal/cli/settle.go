package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(settleCmd)
	settleCmd.AddCommand(settleProjectCmd)
	settleCmd.AddCommand(settleEmissionCmd)

	settleProjectCmd.Flags().StringP("receiver", "r", "", "wallet address receiving the credits")
	settleProjectCmd.Flags().StringP("project", "p", "", "offset project id to redeem")
	settleProjectCmd.MarkFlagRequired("receiver")
	settleProjectCmd.MarkFlagRequired("project")

	settleEmissionCmd.Flags().StringP("company", "c", "", "company wallet address")
	settleEmissionCmd.Flags().IntP("year", "y", 0, "emission year to reconcile")
	settleEmissionCmd.MarkFlagRequired("company")
	settleEmissionCmd.MarkFlagRequired("year")
}

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Run a settlement against the daemon",
	Long: `Trigger a settlement flow on the running daemon.

Two flows exist:
  settle project  — redeem an offset project and mint its credits
  settle emission — reconcile a company's annual emission against its limit`,
}

// ─── settle project ─────────────────────────────────────────────────────────

var settleProjectCmd = &cobra.Command{
	Use:   "project",
	Short: "Redeem an offset project",
	RunE:  runSettleProject,
}

func runSettleProject(cmd *cobra.Command, args []string) error {
	receiver, _ := cmd.Flags().GetString("receiver")
	project, _ := cmd.Flags().GetString("project")

	resp, err := postJSON("/api/settlements/project", map[string]any{
		"address":   receiver,
		"projectId": project,
	})
	if err != nil {
		return err
	}

	switch resp["status"] {
	case "already_used":
		fmt.Fprintf(os.Stdout, "Project %s was already redeemed — no credits minted.\n", project)
	default:
		fmt.Fprintf(os.Stdout, "Minted %v credits for project %v (%v).\n",
			resp["credited"], resp["project_id"], resp["project_name"])
	}
	fmt.Fprintf(os.Stdout, "Balance: %v\n", resp["balance"])
	return nil
}

// ─── settle emission ────────────────────────────────────────────────────────

var settleEmissionCmd = &cobra.Command{
	Use:   "emission",
	Short: "Reconcile a company's annual emission",
	RunE:  runSettleEmission,
}

func runSettleEmission(cmd *cobra.Command, args []string) error {
	company, _ := cmd.Flags().GetString("company")
	year, _ := cmd.Flags().GetInt("year")

	resp, err := postJSON("/api/settlements/period", map[string]any{
		"address": company,
		"year":    year,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Year %v: limit %v, actual %v → %v (%v)\n",
		resp["year"], resp["limit"], resp["actual"], resp["status"], resp["action"])
	if cleared, ok := resp["debt_cleared"]; ok {
		fmt.Fprintf(os.Stdout, "Cleared prior debt: %v\n", cleared)
	}
	fmt.Fprintf(os.Stdout, "Balance: %v  Debt: %v\n", resp["balance"], resp["debt"])
	return nil
}

// ─── Daemon HTTP helpers ────────────────────────────────────────────────────

var httpClient = &http.Client{Timeout: 30 * time.Second}

func postJSON(path string, body map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Post(daemonURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w\nIs it running? Start with: carbond serve", daemonURL, err)
	}
	defer resp.Body.Close()
	return decodeDaemonResponse(resp)
}

func getJSON(path string) (map[string]any, error) {
	resp, err := httpClient.Get(daemonURL + path)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w\nIs it running? Start with: carbond serve", daemonURL, err)
	}
	defer resp.Body.Close()
	return decodeDaemonResponse(resp)
}

func decodeDaemonResponse(resp *http.Response) (map[string]any, error) {
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode daemon response: %w", err)
	}

	if resp.StatusCode >= 300 {
		if e, ok := out["error"].(map[string]any); ok {
			msg := fmt.Sprintf("%v: %v", e["kind"], e["message"])
			if avail, ok := e["available_projects"].([]any); ok && len(avail) > 0 {
				msg += "\nAvailable projects:"
				for _, p := range avail {
					if proj, ok := p.(map[string]any); ok {
						msg += fmt.Sprintf("\n  %v — %v (%v tons)", proj["id"], proj["projectName"], proj["offsetTon"])
					}
				}
			}
			return nil, fmt.Errorf("%s", msg)
		}
		return nil, fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	return out, nil
}
