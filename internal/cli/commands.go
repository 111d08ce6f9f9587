package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fafa-a/runtty/internal/command"
	"github.com/fafa-a/runtty/internal/projects"
	"github.com/fafa-a/runtty/internal/ui"
	"github.com/spf13/cobra"
)

func newUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive project list (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd, opts)
		},
	}
}

func runUI(cmd *cobra.Command, opts *rootOptions) error {
	restore, err := opts.logToFile()
	if err != nil {
		return err
	}
	defer restore()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := opts.connect(ctx, false)
	if err != nil {
		return err
	}
	defer c.Close()

	// The UI runs without a bridge too; a failed sync is shown, not fatal.
	if opts.cfg.SyncOnConnect {
		_ = c.sess.Sync(ctx)
	}

	return ui.Run(ctx, c.sess)
}

func newOpenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Pick a workspace folder and list its projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.sess.OpenWorkspace(cmd.Context()); err != nil {
				return err
			}
			list := c.sess.Projects()
			if len(list) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "Folder selection cancelled.")
				return nil
			}
			printProjects(cmd.OutOrStdout(), list, c.sess.Running())
			return nil
		},
	}
}

func newStartCmd(opts *rootOptions) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "start <project-path>",
		Short: "Start the run command of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Close()

			if !cmd.Flags().Changed("command") {
				index = opts.cfg.CommandIndex
			}
			if err := c.sess.StartCommand(cmd.Context(), args[0], index); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s running\n", args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "command", 0, "index of the backend run command")
	return cmd
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <project-path>",
		Short: "Stop a running project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Stop needs the current running set to pass its guard.
			c, err := opts.connect(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.sess.Stop(cmd.Context(), args[0]); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s stopped\n", args[0])
			return nil
		},
	}
}

func newStopAllCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every running project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			n := c.sess.Running().Len()
			if err := c.sess.StopAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped %d projects\n", n)
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List running projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			printRunning(cmd.OutOrStdout(), c.sess.Running())
			return nil
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print running-state changes as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := opts.connect(ctx, true)
			if err != nil {
				return err
			}
			defer c.Close()

			return watchRunning(ctx, cmd, c)
		},
	}
}

func watchRunning(ctx context.Context, cmd *cobra.Command, c *client) error {
	ch, cancel := c.sess.Watch()
	defer cancel()

	out := cmd.OutOrStdout()
	prev := c.sess.Running()
	printRunning(out, prev)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			cur := c.sess.Running()
			printChanges(out, prev, cur)
			prev = cur
		}
	}
}

// userError replaces dispatcher errors with the message shown to users.
func userError(err error) error {
	if projects.IsCancelled(err) {
		return nil
	}
	if msg := command.Message(err); msg != "" {
		return errors.New(msg)
	}
	return err
}
