package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sslfixture/entity"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the signer hierarchy",
	Long: `Prints every entity under the root that signed it, roots first. Entities
come from the saved state if present, otherwise from the manifest.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := descriptors(cmd.Context(), manifestPath)
		if err != nil {
			return err
		}
		store := entity.NewStore(nil)
		for _, d := range ds {
			if err := store.Register(d); err != nil {
				return err
			}
		}
		return printGraph(cmd.OutOrStdout(), store)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

// printGraph writes one line per entity, indented under its signer.
// Entities whose signer was never declared are listed at the top level.
func printGraph(w io.Writer, store *entity.Store) error {
	order, err := store.Order()
	if err != nil {
		return err
	}
	var walk func(d entity.Descriptor, depth int)
	walk = func(d entity.Descriptor, depth int) {
		label := d.Name + " " + d.DN.String()
		if d.IsRoot() {
			label = d.Name + " [CA] " + d.DN.String()
		}
		fmt.Fprintf(w, "%*s%s\n", depth*2, "", label)
		for _, child := range store.Signees(d.Name) {
			c, _ := store.Lookup(child)
			walk(c, depth+1)
		}
	}
	for _, name := range order {
		d, err := store.Lookup(name)
		if err != nil {
			return err
		}
		switch _, serr := store.Lookup(d.Signer); {
		case d.IsRoot():
			walk(d, 0)
		case serr != nil:
			fmt.Fprintf(w, "%s %s (unresolved signer %q)\n", d.Name, d.DN.String(), d.Signer)
		}
	}
	return nil
}
