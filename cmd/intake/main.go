package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"intake-relay/config"
	"intake-relay/session"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// app carries the settings every subcommand shares.
type app struct {
	cfg config.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cfg, err := config.LoadClient()

	cmd := &cobra.Command{
		Use:           "intake",
		Short:         "Live patient intake over the session relay",
		Long:          "intake fills in a patient intake form from the terminal and shows it live to staff watching the same session.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err != nil {
				return err
			}
			level, err := config.Level(a.cfg.LogLevel)
			if err != nil {
				return err
			}
			logger = logger.Level(level)
			return nil
		},
	}
	a.cfg = cfg

	cmd.PersistentFlags().StringVar(&a.cfg.WSURL, "url", cfg.WSURL, "relay WebSocket URL (env INTAKE_WS_URL)")
	cmd.PersistentFlags().StringVar(&a.cfg.Store, "store", cfg.Store, `where the session is kept: "file" or a redis:// URL (env INTAKE_STORE)`)
	cmd.PersistentFlags().StringVar(&a.cfg.StateFile, "state-file", cfg.StateFile, "session file for the file store (env INTAKE_STATE_FILE)")

	cmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newPatientCmd(a),
		newStaffCmd(a),
	)
	return cmd
}

// openStore returns the configured session store and a function releasing it.
func (a *app) openStore(ctx context.Context) (session.Store, func(), error) {
	switch {
	case a.cfg.Store == "" || a.cfg.Store == "file":
		path := a.cfg.StateFile
		if path == "" {
			p, err := session.DefaultPath()
			if err != nil {
				return nil, nil, err
			}
			path = p
		}
		return session.NewFileStore(path), func() {}, nil
	case strings.HasPrefix(a.cfg.Store, "redis://"), strings.HasPrefix(a.cfg.Store, "rediss://"):
		st, err := session.NewRedisStoreFromURL(ctx, a.cfg.Store, "")
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", a.cfg.Store)
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
