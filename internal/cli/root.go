// Package cli implements the runtty command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fafa-a/runtty/internal/bridge"
	"github.com/fafa-a/runtty/internal/config"
	"github.com/fafa-a/runtty/internal/session"
	"github.com/fafa-a/runtty/pkg/logger"
	"github.com/spf13/cobra"
)

// Opener builds the bridge transport for a configuration.
type Opener func(cfg *config.Config) bridge.Transport

type rootOptions struct {
	bridgeURL string
	logLevel  string

	open Opener
	cfg  *config.Config
}

// NewRootCmd returns the runtty root command connected over the network
// bridge.
func NewRootCmd() *cobra.Command {
	return newRootCmd(openSocket)
}

func newRootCmd(open Opener) *cobra.Command {
	opts := &rootOptions{open: open}

	root := &cobra.Command{
		Use:           "runtty",
		Short:         "Start and stop the projects of a workspace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd, opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.bridgeURL, "bridge", "", "bridge server URL (overrides RUNTTY_BRIDGE_URL)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(newUICmd(opts))
	root.AddCommand(newOpenCmd(opts))
	root.AddCommand(newStartCmd(opts))
	root.AddCommand(newStopCmd(opts))
	root.AddCommand(newStopAllCmd(opts))
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newWatchCmd(opts))

	return root
}

func (o *rootOptions) load() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.bridgeURL != "" {
		cfg.BridgeURL = strings.TrimRight(o.bridgeURL, "/")
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lvl, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Debug && lvl > logger.LevelDebug {
		lvl = logger.LevelDebug
	}
	logger.SetLevel(lvl)

	o.cfg = cfg
	return nil
}

func openSocket(cfg *config.Config) bridge.Transport {
	return bridge.Open(bridge.SocketOptions{
		ServerURL:   cfg.BridgeURL,
		Path:        cfg.BridgePath,
		Token:       cfg.Token,
		CallTimeout: cfg.CallTimeout,
	})
}

// client is one connected session used by a single command.
type client struct {
	transport bridge.Transport
	sess      *session.Session
}

func (o *rootOptions) connect(ctx context.Context, sync bool) (*client, error) {
	t := o.open(o.cfg)
	sess := session.New(t,
		session.WithCommandIndex(o.cfg.CommandIndex),
		session.WithSyncOnConnect(sync && o.cfg.SyncOnConnect),
	)
	if err := sess.Connect(ctx); err != nil {
		_ = sess.Close()
		_ = t.Close()
		return nil, fmt.Errorf("connect to bridge: %w", err)
	}
	return &client{transport: t, sess: sess}, nil
}

func (c *client) Close() {
	_ = c.sess.Close()
	_ = c.transport.Close()
}

// logToFile sends log output to a file under the runtime home while a full
// screen program owns the terminal.
func (o *rootOptions) logToFile() (func(), error) {
	if err := o.cfg.Save(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(o.cfg.RuntimeHome, "runtty.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(f)
	return func() {
		logger.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}
