package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	apperrors "github.com/bob-park/on-time-session/internal/errors"
	figure "github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Exit codes, so scripts can tell a missing session from other failures.
const (
	ExitCodeSuccess      = 0
	ExitCodeError        = 1
	ExitCodeAuthRequired = 2
	ExitCodeAuthFailed   = 3
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ontime-session",
	Short: "Drive the On Time session manager from a terminal",
	Long: `ontime-session logs in to the On Time authorization server, keeps the
session renewed and prints the current access token for use with the On Time API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file; environment variables override it")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newAuthorizeCmd(),
		newLoginCmd(),
		newStatusCmd(),
		newTokenCmd(),
		newRefreshCmd(),
		newLogoutCmd(),
		newRegisterCmd(),
		newWatchCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, apperrors.ErrNotLoggedIn):
		return ExitCodeAuthRequired
	case errors.Is(err, apperrors.ErrAuthExchange):
		return ExitCodeAuthFailed
	default:
		return ExitCodeError
	}
}

func setupLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// displayAppname prints the banner to stderr so stdout stays scriptable.
func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(os.Stderr, myFigure.String())
}
