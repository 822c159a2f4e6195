package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/jmcleod/sslfixture/entity"
	"github.com/jmcleod/sslfixture/verify"
)

var errVerifyFailed = errors.New("verification failed")

var verifyJSONOutput bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check generated artifacts",
	Long: `Checks every entity under the output root: key containers match their
declared encoding, roots are self-signed CAs and leaf chains verify against
their signer. Leaves are also checked against the signer's CRL when one has
been published. Entities come from the saved state if present, otherwise
from the manifest.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := descriptors(cmd.Context(), manifestPath)
		if err != nil {
			return err
		}
		reports := lo.Map(ds, func(d entity.Descriptor, _ int) verify.Report { return verify.Entity(outDir, d) })

		out := cmd.OutOrStdout()
		if verifyJSONOutput {
			if err := printJSONReports(out, reports); err != nil {
				return err
			}
		} else {
			printHumanReports(out, reports)
		}
		if failed := lo.CountBy(reports, func(r verify.Report) bool { return !r.OK() }); failed > 0 {
			return fmt.Errorf("%w: %d of %d entities", errVerifyFailed, failed, len(reports))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output results as JSON")
}

func printHumanReports(w io.Writer, reports []verify.Report) {
	for _, r := range reports {
		tag := "[PASS]"
		if !r.OK() {
			tag = "[FAIL]"
		}
		line := fmt.Sprintf("%s %s", tag, r.Entity)
		if r.Signer != "" {
			line += " (signed by " + r.Signer + ")"
		}
		if r.Serial != "" {
			line += " serial " + r.Serial
		}
		if r.Revoked {
			line += " REVOKED"
		}
		if r.Err != nil {
			line += ": " + r.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
}

type jsonReport struct {
	Entity     string `json:"entity"`
	Signer     string `json:"signer,omitempty"`
	Serial     string `json:"serial,omitempty"`
	Key        string `json:"key,omitempty"`
	CRLChecked bool   `json:"crl_checked"`
	Revoked    bool   `json:"revoked"`
	Valid      bool   `json:"valid"`
	Error      string `json:"error,omitempty"`
}

func printJSONReports(w io.Writer, reports []verify.Report) error {
	out := lo.Map(reports, func(r verify.Report, _ int) jsonReport {
		j := jsonReport{
			Entity:     r.Entity,
			Signer:     r.Signer,
			Serial:     r.Serial,
			CRLChecked: r.CRLChecked,
			Revoked:    r.Revoked,
			Valid:      r.OK(),
		}
		if r.Container != verify.UnknownContainer {
			j.Key = r.Container.String()
		}
		if r.Err != nil {
			j.Error = r.Err.Error()
		}
		return j
	})
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
