package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/facilitydesk/taskdispatch/internal/api"
	"github.com/facilitydesk/taskdispatch/internal/dispatch"
	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/spf13/cobra"
)

func previewCmd(opts *globalOptions) *cobra.Command {
	var req api.PreviewRequest

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show what would be sent for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var plan api.PlanResponse
			if _, err := opts.client().do(cmd.Context(), http.MethodPost, "/api/dispatch/preview", req, &plan); err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.RecipientID, "recipient", "", "only this recipient id")
	cmd.Flags().BoolVar(&req.Unassigned, "unassigned", false, "only unassigned occurrences (these are never sendable, so the preview is empty)")
	cmd.Flags().StringVar(&req.Date, "date", "", "dispatch reminders for this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.Time, "time", "", "evaluate eligibility at this time of day (HH:MM)")
	cmd.MarkFlagsMutuallyExclusive("recipient", "unassigned")
	return cmd
}

func sendCmd(opts *globalOptions) *cobra.Command {
	var (
		planID string
		apply  bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Run a previewed plan",
		Long:  "Run a previewed plan. With --apply the confirmed deliveries are then marked as sent.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			out := cmd.OutOrStdout()

			var run api.RunResponse
			status, err := client.do(cmd.Context(), http.MethodPost, "/api/dispatch/runs",
				api.RunRequest{PlanID: planID}, &run, http.StatusServiceUnavailable)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Run %s: %s\n", run.ID, run.Report)
			for _, r := range run.Results {
				if !r.Success {
					fmt.Fprintf(out, "  failed: %s: %s\n", r.RecipientName, r.Error)
				}
			}

			if apply {
				var rec dispatch.Reconciliation
				if _, err := client.do(cmd.Context(), http.MethodPost, "/api/dispatch/runs/"+run.ID+"/apply", nil, &rec); err != nil {
					return err
				}
				fmt.Fprintf(out, "Applied: %d marked sent, %d left pending, %d skipped\n",
					len(rec.Sent), len(rec.Pending), len(rec.Skipped))
			}

			if status == http.StatusServiceUnavailable {
				return errors.New(strings.ToLower(api.ConnectionLostMessage))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&planID, "plan", "", "plan id returned by preview")
	cmd.Flags().BoolVar(&apply, "apply", false, "apply the results after the run")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func printPlan(w io.Writer, p api.PlanResponse) {
	fmt.Fprintln(w, p.Prompt)
	if p.ID == "" {
		return
	}
	if p.ExpiresAt != nil {
		fmt.Fprintf(w, "Plan %s (expires %s)\n", p.ID, humanize.Time(*p.ExpiresAt))
	} else {
		fmt.Fprintf(w, "Plan %s\n", p.ID)
	}
	for _, b := range p.Batches {
		fmt.Fprintf(w, "\n%s  %s\n", b.RecipientName, b.Date.Format(domain.DateLayout))
		for _, it := range b.Items {
			fmt.Fprintf(w, "  - %s %s\n", clock(it), it.Title)
		}
		for _, it := range b.Supplementary {
			fmt.Fprintf(w, "  + %s\n", it.Title)
		}
	}
}

func clock(it dispatch.Item) string {
	if m, err := domain.ParseClock(it.StartTime); err == nil {
		return fmt.Sprintf("%02d:%02d", m/60, m%60)
	}
	return "--:--"
}
