package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/typecasto/halfwit/pkg/halfwit"
)

var runCmd = &cobra.Command{
	Use:   "run session.yml [files...]",
	Short: "Bisect which candidate files cause the configured behavior",
	Long: `Bisect which candidate files cause the configured behavior, based on a
session config.

Candidate files can be listed in the config or passed as additional arguments,
which are expanded as globs. The adapter command from the config is run for
every trial and receives the enabled and disabled candidates via environment
variables.

Interrupting a run is safe: every trial is journaled before the next one
starts, and rerunning with the same session id resumes the search.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		session := sessionFromArgs(args)

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
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&sessionID, "id", "", "The session id to use. An existing journal for this id is resumed")
}

var sessionID string

// sessionFromArgs builds a session from the config file at args[0] plus any
// additional candidate globs.
func sessionFromArgs(args []string) *halfwit.Session {
	configFile, err := os.Open(args[0])
	if err != nil {
		logrus.Fatalf("Failed to open session config - %v", err)
	}
	defer configFile.Close()

	session, err := halfwit.GetSessionFromConfig(configFile)
	if err != nil {
		logrus.Fatalf("Failed to read session config - %v", err)
	}

	for _, pattern := range args[1:] {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			logrus.Fatalf("Invalid glob %q - %v", pattern, err)
		}
		for _, match := range matches {
			if info, err := os.Stat(match); err == nil && !info.IsDir() {
				session.Candidates = append(session.Candidates, halfwit.Candidate(match))
			}
		}
	}

	session.ID = sessionID
	if workDir != "" {
		session.WorkDir = workDir
	}
	session.Log = newLogger()

	return session
}

func printReport(report *halfwit.Report) {
	if report.Stall != nil {
		fmt.Printf("Could not isolate after %d trials: %s\n", report.Trials, report.Stall)
		if len(report.Culprits) > 0 {
			fmt.Println("Culprit sets confirmed before stalling:")
		}
	} else if len(report.Culprits) == 0 {
		fmt.Printf("No culprits found in %d trials, the behavior does not reproduce.\n", report.Trials)
		return
	} else {
		fmt.Printf("Bisection done after %d trials. Culprit sets:\n", report.Trials)
	}
	for _, culprit := range report.Culprits {
		fmt.Printf("  %s (evidence: trials %v)\n", culprit.Members, culprit.Evidence)
	}
	fmt.Printf("Session id: %s\n", report.SessionID)
}
