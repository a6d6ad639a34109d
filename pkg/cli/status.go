package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the outcome of the last compile of each module",
		RunE:  c.runStatus,
	}
}

func (c *CLI) runStatus(cmd *cobra.Command, args []string) error {
	states, err := c.stateManager().Discover()
	if err != nil {
		return err
	}
	if len(states) == 0 {
		c.console.Info("No compiles recorded")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tSTATUS\tLAST COMPILE\tDURATION\tERRORS\tWARNINGS")
	for _, st := range states {
		last := "-"
		if !st.LastCompileTime.IsZero() {
			last = st.LastCompileTime.Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			st.Module, st.Status, last, st.Duration.Round(time.Millisecond), st.Errors, st.Warnings)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, st := range states {
		if st.LastError != "" {
			c.printf("%s: %s\n", st.Module, st.LastError)
		}
	}
	return nil
}
