// Command rusync-client keeps a local directory mirrored to a remote
// rusync server under an opaque key namespace.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/toxaman/rusync/internal/client"
	"github.com/toxaman/rusync/internal/config"
	"github.com/toxaman/rusync/internal/fsevent"
)

// pollInterval is how often the fallback polling watcher re-snapshots the
// client tree (§1 Scope: the real notification source is an external
// collaborator; this is what runs absent one).
const pollInterval = 1 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the documented process exit code (§6): 0 clean, -1 wrong
// arg count, -2 client path missing.
func run(args []string) int {
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: rusync-client <path> <server_host> <server_port> <key>")
		return -1
	}

	log := logrus.New()

	cmd := &cobra.Command{
		Use:           "rusync-client <path> <server_host> <server_port> <key>",
		Short:         "Mirror a local directory to a rusync server",
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetArgs(args)

	var pathMissing bool
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		path, host, port, key := args[0], args[1], args[2], args[3]

		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			pathMissing = true
			return fmt.Errorf("client path does not exist or is not a directory: %s", path)
		}

		cfg := config.Client{Path: path, ServerHost: host, ServerPort: port, Key: key}
		if err := cfg.Validate(); err != nil {
			return err
		}

		app := client.New(cfg, log)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		watcher := fsevent.NewPollingWatcher(path, pollInterval, log)
		go watcher.Run(ctx, app.Events())

		return app.Run(ctx)
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if pathMissing {
			return -2
		}
		return -1
	}
	return 0
}
