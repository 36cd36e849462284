package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/typecasto/halfwit/pkg/halfwit"
)

var statusCmd = &cobra.Command{
	Use:   "status session-id",
	Short: "Summarize the search state of a session from its journal",
	Long: `Summarize the search state of a session by replaying its journal.

This works offline: the journal alone determines the frontier and it records
the session's search configuration, so no adapter is run and no files are
touched.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := workDir
		if dir == "" {
			dir = ".halfwit"
		}
		status, err := halfwit.LoadSessionStatus(dir, args[0])
		if err != nil {
			logrus.Fatalf("Failed to load session status - %v", err)
		}

		fmt.Printf("Session %s: %s\n", status.SessionID, status.State)
		fmt.Printf("Trials recorded: %d\n", status.Trials)
		fmt.Printf("Suspects remaining: %d\n", status.FrontierSize)
		for _, culprit := range status.Culprits {
			fmt.Printf("Culprit set: %s (evidence: trials %v)\n", culprit.Members, culprit.Evidence)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
