// Package config holds the validated startup configuration for both
// binaries, ported from the original's Config.hpp (client and server each
// had their own small positional-argument struct).
package config

import "fmt"

// Client is the rusync-client configuration: the local directory to keep
// in sync, and the remote server + namespace to sync it against.
type Client struct {
	Path       string
	ServerHost string
	ServerPort string
	Key        string
}

// Validate checks that every field required to start the client app is
// present. Existence/type of Path on disk is checked by the caller
// (§6 exit code -2 is raised there, not here).
func (c Client) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("config: client path must not be empty")
	}
	if c.ServerHost == "" {
		return fmt.Errorf("config: server host must not be empty")
	}
	if c.ServerPort == "" {
		return fmt.Errorf("config: server port must not be empty")
	}
	if c.Key == "" {
		return fmt.Errorf("config: key must not be empty")
	}
	return nil
}

// Server is the rusync-server configuration: the address to listen on and
// the filesystem root under which per-key namespaces are created.
type Server struct {
	IP   string
	Port string
	Root string
}

// Validate checks the server configuration is complete.
func (c Server) Validate() error {
	if c.IP == "" {
		return fmt.Errorf("config: server ip must not be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("config: server port must not be empty")
	}
	if c.Root == "" {
		return fmt.Errorf("config: server root must not be empty")
	}
	return nil
}
