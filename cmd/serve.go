package cmd

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/theapemachine/recall/pkg/service"
	"github.com/theapemachine/recall/pkg/tools"
)

var (
	portFlag int
	hostFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the memory service",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	httpCmd = &cobra.Command{
		Use:   "http",
		Short: "Serve the memory store over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore()

			if err != nil {
				return err
			}

			snapshots, err := buildSnapshots()

			if err != nil {
				return err
			}

			opts := []service.MemoryServerOption{
				service.WithAddr(fmt.Sprintf("%s:%d", hostFlag, portFlag)),
			}

			if snapshots != nil {
				opts = append(opts, service.WithSnapshots(snapshots))
			}

			return service.NewMemoryServer(store, opts...).Start()
		},
	}

	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory store as an MCP stdio server",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore()

			if err != nil {
				return err
			}

			srv := server.NewMCPServer(
				projectName,
				version,
				server.WithLogging(),
				server.WithToolCapabilities(true),
			)

			tools.RegisterMemoryTools(srv, store)

			return server.ServeStdio(srv)
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.AddCommand(httpCmd)
	serveCmd.AddCommand(mcpCmd)

	serveCmd.PersistentFlags().IntVarP(&portFlag, "port", "p", 3210, "Port to serve on")
	serveCmd.PersistentFlags().StringVarP(&hostFlag, "host", "H", "0.0.0.0", "Host address to bind to")
}

var longServe = `
Serve the memory store over HTTP or as an MCP stdio server.

Examples:
  # Serve the HTTP API on port 8080
  recall serve http --port 8080

  # Serve the MCP stdio server for an assistant session
  recall serve mcp
`
