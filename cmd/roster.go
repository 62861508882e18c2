// -- cmd/roster.go --
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
	"github.com/xkilldash9x/slotrunner/internal/observability"
	"github.com/xkilldash9x/slotrunner/internal/roster"
)

func newRosterCmd(st *cliState) *cobra.Command {
	var policy string
	rosterCmd := &cobra.Command{
		Use:   "roster [path]",
		Short: "Parse a roster and report incomplete records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := st.cfg.Roster.Path
			if len(args) == 1 {
				path = args[0]
			}
			profiles, err := roster.Load(path)
			if err != nil {
				return err
			}
			printRoster(cmd.OutOrStdout(), path, profiles)

			p := st.cfg.Roster.Incomplete
			if policy != "" {
				p = config.IncompletePolicy(policy)
			}
			kept, err := roster.Apply(profiles, p, observability.GetLogger())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d of %d profiles would run under policy %q.\n",
				len(kept), len(profiles), p)
			return err
		},
	}
	rosterCmd.Flags().StringVar(&policy, "policy", "", fmt.Sprintf("Incomplete-record policy to check against, one of %v. (Overrides config/env)", incompletePolicies))
	return rosterCmd
}

func printRoster(w io.Writer, path string, profiles []schemas.Profile) {
	incomplete := 0
	for _, p := range profiles {
		missing := roster.Missing(p)
		if len(missing) == 0 {
			continue
		}
		incomplete++
		fmt.Fprintf(w, "line %d (%s): missing %s\n", p.Line, displayName(p), strings.Join(missing, ", "))
	}
	fmt.Fprintf(w, "%s: %d profiles, %d complete, %d incomplete.\n", path, len(profiles), len(profiles)-incomplete, incomplete)
}

func displayName(p schemas.Profile) string {
	if p.Name == "" {
		return "unnamed"
	}
	return p.Name
}

// incompletePolicies lists the accepted roster.incomplete values for help text.
var incompletePolicies = []config.IncompletePolicy{config.IncompleteSubmit, config.IncompleteSkip, config.IncompleteReject}
