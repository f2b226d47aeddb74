package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/store"
)

func openStore(root *rootOptions) (*store.Store, error) {
	cfg, err := root.load()
	if err != nil {
		return nil, err
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func newEventsCmd(root *rootOptions) *cobra.Command {
	var (
		limit   int
		session string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded mode and action transitions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			events, err := st.Events().List(session, limit)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events (0 for all)")
	cmd.Flags().StringVar(&session, "session", "", "only events of this session")
	return cmd
}

func newSessionsCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List pipeline sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.Sessions().List(limit)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			return printSessions(cmd.OutOrStdout(), st, sessions)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions (0 for all)")
	return cmd
}

func printEvents(out io.Writer, events []*store.Event) {
	if len(events) == 0 {
		fmt.Fprintln(out, "No events recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tSESSION\tMODE\tACTION\tRIGHT")
	fmt.Fprintln(w, "----\t-------\t----\t------\t-----")
	for _, e := range events {
		action := e.Action
		if e.Direction != "" {
			action += " " + e.Direction
		}
		right := "-"
		if e.Right != nil {
			right = fmt.Sprintf("%.3f,%.3f", e.Right.X, e.Right.Y)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.At.Local().Format("2006-01-02 15:04:05.000"), shortID(e.SessionID), e.Mode, action, right)
	}
	w.Flush()
}

func printSessions(out io.Writer, st *store.Store, sessions []*store.Session) error {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tEVENTS")
	fmt.Fprintln(w, "--\t-------\t--------\t------")
	for _, s := range sessions {
		n, err := st.Events().Count(s.ID)
		if err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		duration := "running"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), duration, n)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
