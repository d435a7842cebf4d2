// Package cli implements genctl, the operator command line for the
// generation job tracker.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultAPIURL = "http://localhost:8080"

type globalFlags struct {
	apiURL  string
	token   string
	timeout time.Duration
}

func (g *globalFlags) client() *Client {
	return NewClient(g.apiURL, g.token)
}

// NewRootCmd wires every genctl subcommand.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "genctl",
		Short:         "Submit, watch and recover generation jobs",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&g.apiURL, "api-url", envOr("GENCTL_API_URL", defaultAPIURL), "API daemon base URL")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("API_TOKEN"), "bearer token for the API daemon")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 15*time.Second, "timeout for single API calls")

	root.AddCommand(SubmitCmd(g))
	root.AddCommand(StatusCmd(g))
	root.AddCommand(CancelCmd(g))
	root.AddCommand(ResolveCmd(g))
	root.AddCommand(RecoverCmd())
	root.AddCommand(SetKeyCmd())
	root.AddCommand(InstallNotifyCmd())
	return root
}

func (g *globalFlags) callContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), g.timeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
