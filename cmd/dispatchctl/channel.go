package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/facilitydesk/taskdispatch/internal/api"
	"github.com/spf13/cobra"
)

func statusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the messaging channel state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.ChannelStatusResponse
			if _, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/channel/status", nil, &status); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func connectCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Start a channel connection",
		Long:  "Start a channel connection. Run status afterwards to see the scan code.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.ChannelStateResponse
			if _, err := opts.client().do(cmd.Context(), http.MethodPost, "/api/channel/connect", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Channel", resp.State)
			return nil
		},
	}
}

func disconnectCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Tear the channel session down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.ChannelStateResponse
			if _, err := opts.client().do(cmd.Context(), http.MethodPost, "/api/channel/disconnect", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Channel", resp.State)
			return nil
		},
	}
}

func printStatus(w io.Writer, s api.ChannelStatusResponse) {
	fmt.Fprintf(w, "State: %s (since %s)\n", s.State, humanize.Time(s.Since))
	if s.ScanPayload != "" {
		fmt.Fprintf(w, "Scan code: %s\n", s.ScanPayload)
	}
	if s.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", s.LastError)
	}
}
