package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sslfixture/engine"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sslfixture and openssl versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sslfixture %s\n", Version)
		v, err := engine.NewOpenSSL(".", engine.WithBinary(opensslPath)).Version(cmd.Context())
		if err != nil {
			fmt.Fprintf(out, "openssl: unavailable (%v)\n", err)
			return nil
		}
		fmt.Fprintf(out, "%s\n", v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
