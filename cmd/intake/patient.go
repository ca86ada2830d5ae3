package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"intake-relay/client"
	"intake-relay/models"
	"intake-relay/patient"
)

func newPatientCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "patient",
		Short: "Fill in the intake form",
		Long: "Reads field=value lines from stdin and streams the draft to staff in the same session. " +
			"A line reading submit sends the form as submitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSession(cmd)
			if err != nil {
				return err
			}

			transport := client.NewLazy(a.cfg.WSURL, client.WithLogger(logger))
			defer transport.Close()
			conn, err := transport.Get(cmd.Context())
			if err != nil {
				return err
			}
			if err := conn.Join(s.SessionID); err != nil {
				return err
			}

			em := patient.NewEmitter(s.SessionID, conn, patient.WithErrorHandler(func(err error) {
				logger.Warn().Err(err).Msg("failed to send draft")
			}))
			defer em.Close()

			return runPatient(cmd.InOrStdin(), cmd.OutOrStdout(), em)
		},
	}
}

// runPatient applies each input line to the draft. Blank lines and lines
// starting with # are skipped.
func runPatient(in io.Reader, out io.Writer, em *patient.Emitter) error {
	draft := models.Draft{}
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "submit" {
			if err := em.Submit(draft); err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			fmt.Fprintf(out, "status: %s\n", em.Status())
			continue
		}
		field, value, ok := strings.Cut(line, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			fmt.Fprintf(out, "expected field=value or submit, got %q\n", line)
			continue
		}
		draft[field] = strings.TrimSpace(value)
		em.Change(draft)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	// input ended mid-edit: send what we have rather than drop it
	return em.Flush()
}
