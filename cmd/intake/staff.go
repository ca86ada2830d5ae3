package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"intake-relay/client"
	"intake-relay/models"
	"intake-relay/presence"
	"intake-relay/staff"
)

// labelText is how each presence label is shown to staff.
var labelText = map[models.Status]string{
	models.StatusFilling:   "Active (Filling)",
	models.StatusInactive:  "Inactive",
	models.StatusSubmitted: "Submitted",
}

func newStaffCmd(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Watch the patient's form live",
		Long:  "Joins the stored session and prints the patient's draft and presence whenever either changes. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSession(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			transport := client.NewLazy(a.cfg.WSURL, client.WithLogger(logger))
			defer transport.Close()
			conn, err := transport.Get(ctx)
			if err != nil {
				return err
			}
			return runStaff(ctx, conn, s.SessionID, interval, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", presence.DefaultInterval, "how often presence is re-evaluated")
	return cmd
}

// runStaff joins sessionID on conn and redraws out whenever the view changes,
// until ctx is done.
func runStaff(ctx context.Context, conn *client.Conn, sessionID string, interval time.Duration, out io.Writer) error {
	board := staff.NewBoard(sessionID)
	monitor := presence.NewMonitor(board, interval)
	off := conn.On(models.EventStaffUpdate, func(data json.RawMessage) {
		if err := board.Apply(data); err != nil {
			logger.Debug().Err(err).Msg("ignoring malformed staff update")
			return
		}
		monitor.Poke()
	})
	defer off()

	if err := conn.Join(sessionID); err != nil {
		return err
	}

	var last string
	monitor.Run(ctx, func(models.Status) {
		text := renderView(board.View(time.Now().UnixMilli()), time.Local)
		if text != last {
			fmt.Fprint(out, text)
			last = text
		}
	})
	return nil
}

func renderView(v staff.View, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s  [%s]  last active: %s\n", v.SessionID, labelText[v.Label], v.LastActiveText(loc))
	if !v.HasData {
		b.WriteString("  waiting for patient input...\n")
		return b.String()
	}
	for _, f := range v.Fields {
		value := f.Value
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "  %-18s %s\n", f.Name, value)
	}
	return b.String()
}
