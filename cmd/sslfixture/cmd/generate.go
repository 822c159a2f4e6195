package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sslfixture/issuance"
	"github.com/jmcleod/sslfixture/revocation"
)

var (
	keepState    bool
	validityDays int
	quiet        bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate every entity of a manifest",
	Long: `Issues the manifest's entities in declaration order, then applies its
revocations and publishes its CRLs. Without --manifest the built-in fixture
set is generated. Existing artifacts are overwritten.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().BoolVar(&keepState, "state", false, "Save entity state under the output root for later revoke/crl runs")
	generateCmd.Flags().IntVar(&validityDays, "days", 0, "Certificate validity in days (default 3650)")
	generateCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the banner")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	s, err := newSession(cmd.Context(), keepState || stateDSN != "")
	if err != nil {
		return err
	}
	defer s.Close()

	if !quiet {
		printBanner(cmd.OutOrStdout())
	}

	ctx := cmd.Context()
	pipeline := issuance.New(s.store, s.engine, s.root,
		issuance.WithLogger(slog.Default()),
		issuance.WithValidityDays(validityDays),
	)
	if err := pipeline.Run(ctx, m.Entities); err != nil {
		return err
	}

	manager := revocation.New(s.store, s.engine, s.root, revocation.WithLogger(slog.Default()))
	for _, r := range m.Revocations {
		if err := manager.Revoke(ctx, r.Signer, r.Target); err != nil {
			return fmt.Errorf("revoking %q under %q: %w", r.Target, r.Signer, err)
		}
	}
	for _, name := range m.CRLs {
		if err := manager.IssueCRL(ctx, name); err != nil {
			return fmt.Errorf("issuing CRL for %q: %w", name, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Generated %d entities in %s\n", len(m.Entities), s.root)
	return nil
}
