package cmd

import (
	"os"

	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/typecasto/halfwit/pkg/halfwit"
)

var abortAgree bool

var abortCmd = &cobra.Command{
	Use:   "abort session-id",
	Short: "Restore all candidate files of a session to their original state",
	Long: `Restore all candidate files of an interrupted session to their original
state, from the session's file stash.

The journal is left untouched, so the session can still be resumed later.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()

		prompt := promptui.Prompt{
			Label:     "Restore all candidate files of session " + args[0],
			IsConfirm: true,
		}
		if !abortAgree {
			if _, err := prompt.Run(); err != nil {
				logrus.Info("Exiting...")
				os.Exit(0)
			}
		}

		dir := workDir
		if dir == "" {
			dir = ".halfwit"
		}
		if err := halfwit.AbortSession(dir, args[0], log); err != nil {
			logrus.Fatalf("Failed to abort session - %v", err)
		}
		logrus.Info("All candidate files restored.")
	},
}

func init() {
	rootCmd.AddCommand(abortCmd)

	abortCmd.Flags().BoolVarP(&abortAgree, "assume-yes", "y", false, `Bypass "Are you sure?" message.`)
}
