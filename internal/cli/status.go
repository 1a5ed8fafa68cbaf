package cli

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("events", false, "include the recent audit journal")
	statusCmd.Flags().Bool("emissions", false, "include the emission history")
	statusCmd.Flags().Bool("projects", false, "include available offset projects")
}

var statusCmd = &cobra.Command{
	Use:   "status ADDRESS",
	Short: "Show an account's carbon position",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	address := url.PathEscape(args[0])

	resp, err := getJSON("/api/accounts/" + address)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Account:      %v\n", resp["address"])
	fmt.Fprintf(os.Stdout, "Balance:      %v\n", resp["balance"])
	fmt.Fprintf(os.Stdout, "Debt:         %v\n", resp["debt"])
	fmt.Fprintf(os.Stdout, "Can transfer: %v\n", resp["can_transfer"])

	if ok, _ := cmd.Flags().GetBool("events"); ok {
		events, err := getJSON("/api/accounts/" + address + "/events")
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\nRecent events (%v):\n", events["count"])
		if list, ok := events["events"].([]any); ok {
			for _, e := range list {
				if ev, ok := e.(map[string]any); ok {
					fmt.Fprintf(os.Stdout, "  %v  %-8v %+v (%v)\n",
						ev["timestamp"], ev["kind"], ev["amount"], ev["provenance"])
				}
			}
		}
	}

	if ok, _ := cmd.Flags().GetBool("emissions"); ok {
		history, err := getJSON("/api/accounts/" + address + "/emissions")
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\nEmission history (%v years):\n", history["total_years"])
		if list, ok := history["history"].([]any); ok {
			for _, e := range list {
				if rec, ok := e.(map[string]any); ok {
					fmt.Fprintf(os.Stdout, "  %v: limit %v, actual %v → %v\n",
						rec["year"], rec["limit"], rec["actual"], rec["status"])
				}
			}
		}
	}

	if ok, _ := cmd.Flags().GetBool("projects"); ok {
		projects, err := getJSON("/api/accounts/" + address + "/projects")
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\nAvailable projects (%v):\n", projects["count"])
		if list, ok := projects["projects"].([]any); ok {
			for _, p := range list {
				if proj, ok := p.(map[string]any); ok {
					fmt.Fprintf(os.Stdout, "  %v — %v (%v tons)\n",
						proj["id"], proj["projectName"], proj["offsetTon"])
				}
			}
		}
	}

	return nil
}
