package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/macrosync/internal/codec"
	"github.com/pandeptwidyaop/macrosync/internal/models"
	"github.com/pandeptwidyaop/macrosync/internal/services"
	"github.com/pandeptwidyaop/macrosync/internal/watch"
)

var (
	fetchOutput string
	fetchFile   string
	pushPreset  string
	pushApply   bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Read the active document (or --file) from the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg, logger)
		if err := a.openStores(cfg, logger); err != nil {
			logger.Warn("history disabled", zap.Error(err))
		}
		defer a.close(logger)

		out := a.coordinator.RefreshFrom(cmd.Context(), fetchFile)
		if err := outcomeErr(out); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), out.Message)

		var text string
		var err error
		a.coordinator.View(func(macros []*models.Macro) {
			if fetchOutput != "" {
				err = codec.EncodeFile(fetchOutput, macros)
				return
			}
			text, err = codec.Encode(macros)
		})
		if err != nil || fetchOutput != "" {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Write a local document to the device",
	Long: `Replaces the device's active document with the given file, or writes it as
a preset with --preset (optionally applying it with --apply).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg, logger)
		if err := a.openStores(cfg, logger); err != nil {
			logger.Warn("history disabled", zap.Error(err))
		}
		defer a.close(logger)

		out, err := push(cmd.Context(), a.coordinator, args[0])
		if err != nil {
			return err
		}
		if err := outcomeErr(out); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Message)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Push a local document every time it changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg, logger)
		if err := a.openStores(cfg, logger); err != nil {
			logger.Warn("history disabled", zap.Error(err))
		}
		defer a.close(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w, err := watch.New(args[0], watch.DefaultDebounce, func(ctx context.Context, path string) {
			out, err := push(ctx, a.coordinator, path)
			switch {
			case err != nil:
				logger.Warn("document not pushed", zap.String("path", path), zap.Error(err))
			case !out.OK:
				logger.Warn(out.Message, zap.String("path", path))
			default:
				logger.Info(out.Message, zap.String("path", path))
			}
		}, logger)
		if err != nil {
			return err
		}
		return w.Run(ctx)
	},
}

// push decodes a local document and writes it as the active document or a preset.
func push(ctx context.Context, c *services.SyncCoordinator, path string) (services.Outcome, error) {
	list, err := codec.DecodeFile(path)
	if err != nil {
		return services.Outcome{}, fmt.Errorf("%s: %w", path, err)
	}
	c.ReplaceMacros(list)

	if pushPreset != "" {
		return c.SavePreset(ctx, pushPreset, pushApply), nil
	}
	return c.SaveMacros(ctx), nil
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "write the document to this file instead of stdout")
	fetchCmd.Flags().StringVar(&fetchFile, "file", "", "preset file or absolute remote path to read instead of the active document")

	for _, cmd := range []*cobra.Command{pushCmd, watchCmd} {
		cmd.Flags().StringVar(&pushPreset, "preset", "", "write to this preset instead of the active document")
		cmd.Flags().BoolVar(&pushApply, "apply", false, "apply the preset after writing it")
	}
}
