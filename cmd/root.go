package cmd

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var verbosity int
var workDir string

var rootCmd = &cobra.Command{
	Use:   "halfwit",
	Short: "Isolate which files of a set cause a script to fail by bisecting over them",
	Long: `Halfwit repeatedly runs an adapter command with different subsets of
candidate files enabled to figure out which minimal set of them is causing an
observed behavior, such as a crash or a failure.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase logging verbosity. Can be passed multiple times")
	rootCmd.PersistentFlags().StringVarP(&workDir, "work-dir", "w", "", "The directory holding journals and file stashes (default \".halfwit\")")
}

// newLogger creates the CLI logger honoring the verbosity flag.
func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&prefixed.TextFormatter{})

	if verbosity < 0 {
		log.SetOutput(io.Discard)
	} else if verbosity == 0 {
		log.SetLevel(logrus.WarnLevel)
	} else if verbosity == 1 {
		log.SetLevel(logrus.InfoLevel)
	} else if verbosity == 2 {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.TraceLevel)
	}

	return log
}
