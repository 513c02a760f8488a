// Command rusync-server accepts rusync clients, serving each client's
// per-key namespace under a single filesystem root.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/toxaman/rusync/internal/config"
	"github.com/toxaman/rusync/internal/server"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the documented process exit code (§6): 0 clean, -1 wrong
// arg count.
func run(args []string) int {
	if len(args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: rusync-server <ip> <port> <root>")
		return -1
	}

	log := logrus.New()

	cmd := &cobra.Command{
		Use:           "rusync-server <ip> <port> <root>",
		Short:         "Serve rusync client namespaces over HTTP/2 cleartext",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetArgs(args)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg := config.Server{IP: args[0], Port: args[1], Root: args[2]}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return fmt.Errorf("creating server root: %w", err)
		}

		srv := server.New(cfg.Root, log)
		h2s := &http2.Server{}
		httpServer := &http.Server{
			Addr:    net.JoinHostPort(cfg.IP, cfg.Port),
			Handler: h2c.NewHandler(srv.Handler(), h2s),
		}

		log.WithField("addr", httpServer.Addr).Info("listening")
		return httpServer.ListenAndServe()
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return -1
	}
	return 0
}
