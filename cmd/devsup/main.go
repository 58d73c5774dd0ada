package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/devsup/internal/supervisor"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := buildRoot(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		// Exhausted restarts are already reported on the log.
		if !errors.Is(err, supervisor.ErrRestartsExhausted) {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot(stdout, stderr io.Writer) *cobra.Command {
	flags := &GlobalFlags{}
	root := createRootCommand(flags, stdout, stderr)
	root.AddCommand(createVersionCommand())
	return root
}

// createRootCommand creates the root command. It takes no arguments and runs
// the supervisor until interrupted.
func createRootCommand(flags *GlobalFlags, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "devsup",
		Short: "Keep a development server running",
		Long: `devsup launches a development server (npx vite by default), mirrors its
output, records it to server.log and restarts it when it crashes.

Startup failures are retried a limited number of times; a server that crashes
after becoming ready is always restarted.

Examples:
  devsup                            # npx vite --host 0.0.0.0 --port 5173
  devsup --config=devsup.toml       # custom command, delays and markers
  DEVSUP_PORT=3000 devsup           # environment override`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			return run(cmd.Context(), runOptions{
				ConfigPath:     flags.ConfigPath,
				Stdout:         stdout,
				Stderr:         stderr,
				Signals:        sigCh,
				ReleaseSignals: func() { signal.Stop(sigCh) },
			})
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the devsup version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("devsup " + version)
		},
	}
}
