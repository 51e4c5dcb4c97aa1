package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd(out io.Writer) *cobra.Command {
	var (
		baseURL string
		token   string
	)

	root := &cobra.Command{
		Use:           "gatectl",
		Short:         "Operator overrides for the beacon admission service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&baseURL, "url", envOr("GATE_URL", "http://localhost:8080"), "admission service base URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("GATE_ADMIN_TOKEN"), "admin bearer token")
	root.SetOut(out)

	client := func() *Client { return NewClient(baseURL, token) }

	root.AddCommand(circuitCmd(client), blockCmd(client))
	return root
}

func circuitCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circuit",
		Short: "Inspect or override a shop's circuit breaker",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status [shop]",
			Short: "Show the circuit of a shop",
			Args:  cobra.ExactArgs(1),
			RunE:  call(client, "GET", "/admin/circuit/", ""),
		},
		&cobra.Command{
			Use:   "trip [shop]",
			Short: "Open the circuit of a shop for one cooldown",
			Args:  cobra.ExactArgs(1),
			RunE:  call(client, "POST", "/admin/circuit/", "/trip"),
		},
		&cobra.Command{
			Use:   "reset [shop]",
			Short: "Close the circuit of a shop",
			Args:  cobra.ExactArgs(1),
			RunE:  call(client, "POST", "/admin/circuit/", "/reset"),
		},
	)
	return cmd
}

func blockCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Inspect or lift a shop's anomaly block",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status [shop]",
			Short: "Show whether a shop is blocked",
			Args:  cobra.ExactArgs(1),
			RunE:  call(client, "GET", "/admin/blocks/", ""),
		},
		&cobra.Command{
			Use:   "clear [shop]",
			Short: "Lift the block of a shop and clear its anomaly counters",
			Args:  cobra.ExactArgs(1),
			RunE:  call(client, "DELETE", "/admin/blocks/", ""),
		},
	)
	return cmd
}

// call builds a RunE that sends method to prefix+shop+suffix and prints the reply.
func call(client func() *Client, method, prefix, suffix string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		body, err := client().Do(cmd.Context(), method, prefix+args[0]+suffix)
		if err != nil {
			return err
		}
		return printJSON(cmd, body)
	}
}

func printJSON(cmd *cobra.Command, body map[string]any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
