// Package cli implements the kntopo command line.
package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-knative/internal/pkg/logger"
)

type app struct {
	kubeconfig string
	context    string
	logLevel   string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (a *app) logger() *slog.Logger {
	return logger.New(a.stderr, a.logLevel)
}

// NewRootCommand returns the kntopo command wired to the process stdio.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithIO(os.Stdin, os.Stdout, os.Stderr)
}

// NewRootCommandWithIO returns the kntopo command reading and writing the given streams.
func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{stdin: in, stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "kntopo",
		Short:         "Build Knative serving and eventing topologies",
		Long:          "kntopo renders the Knative serving, eventing, Kamelet and Kafka sink graph of a namespace from manifests or a live cluster.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.kubeconfig, "kubeconfig", "", "path to the kubeconfig file")
	cmd.PersistentFlags().StringVar(&a.context, "context", "", "kubeconfig context to use")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newBuildCmd(a),
		newKindsCmd(a),
	)
	return cmd
}
