package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sslfixture/revocation"
)

var (
	revokeSigner string
	revokeTarget string
	crlSigner    string
)

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an issued leaf",
	Long: `Marks the target as revoked in its signer's index. Requires the state
saved by generate --state. Revoking an already revoked target does nothing.
Run crl afterwards to publish the change.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := resumeSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		m := revocation.New(s.store, s.engine, s.root, revocation.WithLogger(slog.Default()))
		if err := m.Revoke(cmd.Context(), revokeSigner, revokeTarget); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s (signer %s)\n", revokeTarget, revokeSigner)
		return nil
	},
}

var crlCmd = &cobra.Command{
	Use:   "crl",
	Short: "Publish a CA's certificate revocation list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := resumeSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		m := revocation.New(s.store, s.engine, s.root, revocation.WithLogger(slog.Default()))
		if err := m.IssueCRL(cmd.Context(), crlSigner); err != nil {
			return err
		}
		revoked, err := m.Revoked(crlSigner)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "CRL for %s lists %d certificate(s)\n", crlSigner, len(revoked))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(revokeCmd)
	revokeCmd.Flags().StringVar(&revokeSigner, "signer", "", "Certificate authority that issued the target")
	revokeCmd.Flags().StringVar(&revokeTarget, "target", "", "Entity to revoke")
	_ = revokeCmd.MarkFlagRequired("signer")
	_ = revokeCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(crlCmd)
	crlCmd.Flags().StringVar(&crlSigner, "signer", "", "Certificate authority whose CRL to publish")
	_ = crlCmd.MarkFlagRequired("signer")
}
