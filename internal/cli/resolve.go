package cli

import (
	"github.com/spf13/cobra"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

func ResolveCmd(g *globalFlags) *cobra.Command {
	var (
		kind  string
		index int
	)
	cmd := &cobra.Command{
		Use:   "resolve <asset-id>",
		Short: "prints a signed URL for an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := domain.AssetKind(kind)
			if err := k.Validate(); err != nil {
				return err
			}
			ctx, cancel := g.callContext(cmd)
			defer cancel()
			reply, err := g.client().AssetURL(ctx, args[0], k, index)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reply)
		},
	}
	cmd.Flags().StringVar(&kind, "type", string(domain.AssetKindImage), "asset type (image or video)")
	cmd.Flags().IntVar(&index, "index", -1, "artifact index for multi-output assets")
	return cmd
}
