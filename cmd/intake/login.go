package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"intake-relay/models"
	"intake-relay/session"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		sessionID string
		role      string
		generate  bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Remember a session id and role",
		Long:  "Stores the session id and role so the patient and staff commands can pick them up. Patient and staff must use the same session id.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if generate {
				sessionID = strings.ToUpper(strings.SplitN(uuid.New().String(), "-", 2)[0])
			}
			st, release, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			s, err := session.Login(cmd.Context(), st, sessionID, models.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s as %s\n", s.SessionID, s.Role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id shared by patient and staff")
	cmd.Flags().StringVarP(&role, "role", "r", string(models.RolePatient), "patient or staff")
	cmd.Flags().BoolVar(&generate, "new", false, "generate a fresh session id")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, release, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if err := st.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSession(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s as %s\n", s.SessionID, s.Role)
			return nil
		},
	}
}

var errLoginFirst = errors.New("no session stored; run intake login first")

func (a *app) loadSession(cmd *cobra.Command) (models.Session, error) {
	st, release, err := a.openStore(cmd.Context())
	if err != nil {
		return models.Session{}, err
	}
	defer release()

	s, err := st.Load(cmd.Context())
	if errors.Is(err, session.ErrNoSession) {
		return models.Session{}, errLoginFirst
	}
	return s, err
}
