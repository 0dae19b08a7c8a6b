package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harrisonrobin/caltask/pkg/auth"
	"github.com/harrisonrobin/caltask/pkg/board"
	"github.com/harrisonrobin/caltask/pkg/config"
	"github.com/harrisonrobin/caltask/pkg/model"
	"github.com/harrisonrobin/caltask/pkg/overdue"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize caltask with Google Calendar",
		Long: `Open the Google consent page and cache the resulting token.

credentials.json from the Google Cloud Console must be in the config directory.
Any previously cached token is discarded first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := auth.Login(cmd.Context(), cmd.OutOrStdout(), opts.logger)
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n", path)
			return nil
		},
	}
}

func newCalendarCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar",
		Short: "Find or create the task calendar and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				id, err := a.ensure(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

func newSetCalendarCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-calendar <name>",
		Short: "Set the default calendar name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := opts.loadConfig()
			if err != nil {
				return err
			}
			cfg.Calendar = args[0]
			if err := config.SaveFile(path, cfg); err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default calendar set to: %s\n", args[0])
			return nil
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks in the lookback window, earliest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				tasks, err := a.listTasks(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), tasks)
				}
				fmt.Fprintln(cmd.OutOrStdout(), board.RenderList(tasks))
				return nil
			})
		},
	}
}

func (a *app) listTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	err := a.withStore(ctx, func(id string) error {
		var err error
		tasks, err = a.store.ListTasks(ctx, a.cred, id)
		return err
	})
	return tasks, err
}

// taskFlags are the flags shared by add and edit.
type taskFlags struct {
	title       string
	description string
	status      string
	progress    int
	due         string
	labels      []string
}

func (f *taskFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.title, "title", "t", "", "Task title")
	fs.StringVarP(&f.description, "description", "d", "", "Task description")
	fs.StringVarP(&f.status, "status", "s", "", "Status: todo, in-progress or done")
	fs.IntVarP(&f.progress, "progress", "p", 0, "Progress percentage, 0 to 100")
	fs.StringVar(&f.due, "due", "", "Due date as YYYY-MM-DD or \"YYYY-MM-DD HH:MM\", in the configured time zone")
	fs.StringSliceVarP(&f.labels, "labels", "l", nil, "Comma separated labels")
}

// validate checks the flags set on the command line without touching a task.
func (f *taskFlags) validate(fs *pflag.FlagSet, loc *time.Location) error {
	var scratch model.Task
	return f.apply(fs, &scratch, loc)
}

// apply copies every flag set on the command line onto task. Due dates are
// read in loc.
func (f *taskFlags) apply(fs *pflag.FlagSet, task *model.Task, loc *time.Location) error {
	if fs.Changed("title") {
		task.Title = f.title
	}
	if fs.Changed("description") {
		task.Description = f.description
	}
	if fs.Changed("status") {
		st, err := model.ParseStatus(f.status)
		if err != nil {
			return err
		}
		task.Status = st
	}
	if fs.Changed("progress") {
		if f.progress < 0 || f.progress > 100 {
			return fmt.Errorf("progress %d out of range 0-100", f.progress)
		}
		task.Progress = f.progress
	}
	if fs.Changed("due") {
		due, err := parseDue(f.due, loc)
		if err != nil {
			return err
		}
		task.Due = due
	}
	if fs.Changed("labels") {
		task.Labels = cleanLabels(f.labels)
	}
	return nil
}

var dueLayouts = []string{time.DateOnly, "2006-01-02 15:04", "2006-01-02T15:04"}

// parseDue reads a date, optionally with a time of day, as wall-clock time
// in loc. An empty value clears the due date.
func parseDue(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range dueLayouts {
		if d, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("invalid due date %q, want YYYY-MM-DD or \"YYYY-MM-DD HH:MM\"", s)
}

func cleanLabels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, l := range in {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	var flags taskFlags
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := opts.location()
			if err != nil {
				return err
			}
			task := model.Task{Status: model.StatusTodo, Labels: []string{}}
			if err := flags.apply(cmd.Flags(), &task, loc); err != nil {
				return err
			}
			if len(args) == 1 && !cmd.Flags().Changed("title") {
				task.Title = args[0]
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				var created model.Task
				err := a.withStore(ctx, func(id string) error {
					var err error
					created, err = a.store.CreateTask(ctx, a.cred, task, id)
					return err
				})
				if err != nil {
					return err
				}
				return printTask(cmd.OutOrStdout(), opts.jsonOut, "Created", created)
			})
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newEditCmd(opts *rootOptions) *cobra.Command {
	var flags taskFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a task",
		Long: `Change the fields given as flags and keep the rest.

The task is read and written back in full, so a concurrent change made
elsewhere between the two requests is overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := opts.location()
			if err != nil {
				return err
			}
			if err := flags.validate(cmd.Flags(), loc); err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				var updated model.Task
				err := a.withStore(ctx, func(id string) error {
					task, err := a.store.GetTask(ctx, a.cred, id, args[0])
					if err != nil {
						return err
					}
					if err := flags.apply(cmd.Flags(), &task, loc); err != nil {
						return err
					}
					updated, err = a.store.UpdateTask(ctx, a.cred, id, args[0], task)
					return err
				})
				if err != nil {
					return err
				}
				return printTask(cmd.OutOrStdout(), opts.jsonOut, "Updated", updated)
			})
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newMoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a task to another kanban column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := model.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				var moved model.Task
				err := a.withStore(ctx, func(id string) error {
					var err error
					moved, err = a.store.UpdateTaskStatus(ctx, a.cred, id, args[0], status)
					return err
				})
				if err != nil {
					return err
				}
				return printTask(cmd.OutOrStdout(), opts.jsonOut, "Moved", moved)
			})
		},
	}
}

func newRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				err := a.withStore(ctx, func(id string) error {
					return a.store.DeleteTask(ctx, a.cred, id, args[0])
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newBoardCmd(opts *rootOptions) *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show tasks as a kanban board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				tasks, err := a.listTasks(ctx)
				if err != nil {
					return err
				}
				cols := board.Columns(tasks)
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), cols)
				}
				fmt.Fprintln(cmd.OutOrStdout(), board.RenderBoard(cols, width))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&width, "width", "w", 32, "Column width")
	return cmd
}

func newWeekCmd(opts *rootOptions) *cobra.Command {
	var (
		date  string
		width int
	)
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Show the tasks due in one week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := opts.location()
			if err != nil {
				return err
			}
			today := time.Now().In(loc)
			anchor := today
			if date != "" {
				d, err := parseDue(date, loc)
				if err != nil {
					return err
				}
				anchor = *d
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				tasks, err := a.listTasks(ctx)
				if err != nil {
					return err
				}
				days := board.Week(tasks, anchor)
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), days)
				}
				fmt.Fprintln(cmd.OutOrStdout(), board.RenderWeek(days, today, width))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Any day of the week to show, as YYYY-MM-DD (default: today)")
	cmd.Flags().IntVarP(&width, "width", "w", 18, "Day column width")
	return cmd
}

func newOverdueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List unfinished tasks past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := opts.location()
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				tasks, err := a.listTasks(ctx)
				if err != nil {
					return err
				}
				entries := overdue.Sweep(tasks, time.Now().In(loc))
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing overdue.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), board.Table([]string{"ID", "Title", "Due", "Days late"}, overdue.Rows(entries)))
				return nil
			})
		},
	}
}

func printTask(w io.Writer, asJSON bool, verb string, t model.Task) error {
	if asJSON {
		return writeJSON(w, t)
	}
	_, err := fmt.Fprintf(w, "%s %s: %s [%s]\n", verb, t.ID, t.Title, t.Status)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
