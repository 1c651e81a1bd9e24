package main

import (
	"os"

	"github.com/spf13/cobra"
)

const (
	envServer = "DISPATCHCTL_SERVER"
	envToken  = "DISPATCHCTL_TOKEN"

	defaultServer = "http://localhost:8080"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	server string
	token  string
}

func (o *globalOptions) client() *apiClient {
	return newAPIClient(o.server, o.token)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "dispatchctl",
		Short:         "Operate the taskdispatch reminder server",
		SilenceUsage: true,
	}

	server := os.Getenv(envServer)
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "taskdispatch base URL (env "+envServer+")")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv(envToken), "operator bearer token (env "+envToken+")")

	root.AddCommand(
		statusCmd(opts),
		connectCmd(opts),
		disconnectCmd(opts),
		previewCmd(opts),
		sendCmd(opts),
	)
	return root
}
