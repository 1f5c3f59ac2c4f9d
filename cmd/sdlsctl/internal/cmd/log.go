package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groundlink/sdls/pkg/sdls"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect the engine's tamper/security event log format",
}

// logDumpCmd demonstrates the event log's wire shape against a freshly
// seeded (startup-only) log, since sdlsctl has no live engine connection.
var logDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print a freshly seeded event log (two STARTUP entries)",
	RunE: func(c *cobra.Command, args []string) error {
		l := sdls.NewEventLog()
		for _, e := range l.Events() {
			fmt.Printf("cid=%s emt=%s emv=%q\n", e.CID, e.EMT, string(e.EMV[:e.EMLen]))
		}
		s := l.Summary()
		fmt.Printf("num_se=%d rs=%d\n", s.NumSE, s.RS)
		return nil
	},
}

func init() {
	logCmd.AddCommand(logDumpCmd)
}
