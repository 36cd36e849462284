package cmd

import (
	"github.com/phayes/freeport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/typecasto/halfwit/internal/server"
)

var servePort int
var serveMaxSessions uint

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server for managing bisection sessions",
	Long: `Start a RESTful HTTP server for managing bisection sessions.

Sessions are started by POSTing a yaml session config to /sessions and can
then be inspected and aborted through the API. Sessions run concurrently, up
to the configured limit; trials within each session remain serialized.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()

		port := servePort
		if port == 0 {
			var err error
			port, err = freeport.GetFreePort()
			if err != nil {
				logrus.Fatalf("Failed to pick a free port - %v", err)
			}
		}

		dir := workDir
		if dir == "" {
			dir = ".halfwit"
		}

		manager := server.NewManager(dir, serveMaxSessions, log)
		logrus.Infof("Serving on localhost:%d", port)
		if err := server.Serve(port, manager); err != nil {
			logrus.Fatalf("Failed to start webserver - %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 40033, "The port on which to start the server, or 0 to pick a free one")
	serveCmd.Flags().UintVarP(&serveMaxSessions, "max-sessions", "m", 0, "The max amount of sessions running concurrently, or 0 if no limit")
}
