package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/d1lod/internal/store"
)

// parseTime accepts RFC 3339 timestamps and bare dates (midnight UTC).
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

// cursorOutput is the state of the since cursor.
type cursorOutput struct {
	Name  string     `json:"name"`
	Value *time.Time `json:"value"`
}

func (c cursorOutput) String() string {
	if c.Value == nil {
		return fmt.Sprintf("%s: not set", c.Name)
	}
	return fmt.Sprintf("%s: %s", c.Name, c.Value.Format(time.RFC3339Nano))
}

// NewCursorCommand creates the cursor command.
func NewCursorCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Show or change where the next harvest starts",
		Long: `Show the harvest cursor: the end of the last completed harvest window,
where harvest starts when --from is not given.

Example:
  d1lod cursor
  d1lod cursor set 2024-01-01
  d1lod cursor clear`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, dbPath, func(st *store.Store) error {
				out := cursorOutput{Name: store.CursorSince}
				t, err := st.GetCursor(cmd.Context(), store.CursorSince)
				switch {
				case errors.Is(err, store.ErrNotFound):
				case err != nil:
					return rootOpts.formatter(cmd).Fail(ExitCommandError, ErrCodeState, "failed to read cursor", err)
				default:
					out.Value = &t
				}
				return rootOpts.formatter(cmd).Success(out)
			})
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to SQLite state database (overrides harvest.state_db)")

	cmd.AddCommand(&cobra.Command{
		Use:           "set <time>",
		Short:         "Set the cursor",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTime(args[0])
			if err != nil {
				return rootOpts.formatter(cmd).Fail(ExitCommandError, ErrCodeArgument, "invalid cursor", err)
			}
			return withStore(cmd, rootOpts, dbPath, func(st *store.Store) error {
				if err := st.SetCursor(cmd.Context(), store.CursorSince, t); err != nil {
					return rootOpts.formatter(cmd).Fail(ExitCommandError, ErrCodeState, "failed to set cursor", err)
				}
				return rootOpts.formatter(cmd).Success(cursorOutput{Name: store.CursorSince, Value: &t})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "clear",
		Short:         "Clear the cursor",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, dbPath, func(st *store.Store) error {
				if err := st.ClearCursor(cmd.Context(), store.CursorSince); err != nil {
					return rootOpts.formatter(cmd).Fail(ExitCommandError, ErrCodeState, "failed to clear cursor", err)
				}
				return rootOpts.formatter(cmd).Success(cursorOutput{Name: store.CursorSince})
			})
		},
	})

	return cmd
}

// withStore loads the configuration, opens the state database and runs fn.
func withStore(cmd *cobra.Command, opts *RootOptions, path string, fn func(*store.Store) error) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cmd, opts, cfg, path)
	if err != nil {
		return err
	}
	defer closeStore(st)
	return fn(st)
}
