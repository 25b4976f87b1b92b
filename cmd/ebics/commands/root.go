package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/pkg/ebics"
)

// app carries state shared by all commands
type app struct {
	configPath string
	cfg        *config.Config
	client     *ebics.Client
	logger     *slog.Logger
	// extra client options, used by tests
	opts []ebics.Option
}

// Execute runs the root command
func Execute() error {
	a := &app{}
	return a.execute(context.Background(), newRootCmd(a))
}

// execute runs root and closes the client even when the command failed.
// Cobra skips post-run hooks after a RunE error.
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close(ctx))
}

func (a *app) close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	err := a.client.Close(context.WithoutCancel(ctx))
	a.client = nil
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ebics",
		Short:         "EBICS H004 banking client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger, err = newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			opts := append([]ebics.Option{ebics.WithLogger(a.logger)}, a.opts...)
			client, err := ebics.New(cmd.Context(), cfg, opts...)
			if err != nil {
				return err
			}
			a.client = client
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "ebics.yaml", "configuration file")

	root.AddCommand(
		initCmd(a),
		iniCmd(a),
		hiaCmd(a),
		hpbCmd(a),
		sprCmd(a),
		hevCmd(a),
		uploadCmd(a),
		resumeCmd(a),
		downloadCmd(a),
		statusCmd(a),
		resetCmd(a),
	)
	return root
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
