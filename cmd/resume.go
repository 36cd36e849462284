package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume session-id session.yml",
	Short: "Resume an interrupted session from its journal",
	Long: `Resume an interrupted session from its journal.

The universe of candidates is taken from the journal; the session config only
supplies the adapter command and search knobs, so stalls can be resolved by
resuming with an adjusted config (e.g. a higher retry threshold).`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		session := sessionFromArgs(args[1:])
		session.ID = args[0]

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := session.Run(ctx)
		if err != nil {
			logrus.Fatalf("Session failed - %v", err)
		}
		printReport(report)
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
