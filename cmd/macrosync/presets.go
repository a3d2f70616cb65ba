package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/macrosync/internal/services"
)

var presetSaveApply bool

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage preset documents on the device",
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List preset files",
	Args:  cobra.NoArgs,
	RunE: withCoordinator(func(cmd *cobra.Command, c *services.SyncCoordinator, args []string) (services.Outcome, error) {
		files, out := c.ListPresetFiles(cmd.Context())
		if !out.OK {
			return out, nil
		}
		policy := c.Policy()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tFILE\tPROTECTED")
		for _, f := range files {
			fmt.Fprintf(tw, "%s\t%s\t%v\n", policy.DisplayName(f), f, policy.IsProtected(f))
		}
		return out, tw.Flush()
	}),
}

var presetsLoadCmd = &cobra.Command{
	Use:   "load <name>",
	Short: "Read a preset and print it",
	Args:  cobra.ExactArgs(1),
	RunE: withCoordinator(func(cmd *cobra.Command, c *services.SyncCoordinator, args []string) (services.Outcome, error) {
		out := c.LoadPreset(cmd.Context(), args[0])
		if out.OK {
			for i, m := range c.Macros() {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-24s %-16s %d steps\n", i, m.Name, m.TriggerText(), len(m.Steps))
			}
		}
		return out, nil
	}),
}

var presetsSaveCmd = &cobra.Command{
	Use:   "save <from-name> <to-name>",
	Short: "Copy a preset (or \"default\") into a new preset",
	Args:  cobra.ExactArgs(2),
	RunE: withCoordinator(func(cmd *cobra.Command, c *services.SyncCoordinator, args []string) (services.Outcome, error) {
		if out := c.LoadPreset(cmd.Context(), args[0]); !out.OK {
			return out, nil
		}
		return c.SavePreset(cmd.Context(), args[1], presetSaveApply), nil
	}),
}

var presetsApplyCmd = &cobra.Command{
	Use:   "apply <name>",
	Short: "Make a preset the active document",
	Args:  cobra.ExactArgs(1),
	RunE: withCoordinator(func(cmd *cobra.Command, c *services.SyncCoordinator, args []string) (services.Outcome, error) {
		return c.ApplyPreset(cmd.Context(), args[0]), nil
	}),
}

var presetsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a preset file",
	Args:  cobra.ExactArgs(1),
	RunE: withCoordinator(func(cmd *cobra.Command, c *services.SyncCoordinator, args []string) (services.Outcome, error) {
		return c.DeletePreset(cmd.Context(), args[0]), nil
	}),
}

// withCoordinator wires a coordinator for a one-shot preset command and
// reports its outcome.
func withCoordinator(fn func(cmd *cobra.Command, c *services.SyncCoordinator, args []string) (services.Outcome, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg, logger)
		if err := a.openStores(cfg, logger); err != nil {
			logger.Warn("history disabled", zap.Error(err))
		}
		defer a.close(logger)

		out, err := fn(cmd, a.coordinator, args)
		if err != nil {
			return err
		}
		if err := outcomeErr(out); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), out.Message)
		return nil
	}
}

func init() {
	presetsSaveCmd.Flags().BoolVar(&presetSaveApply, "apply", false, "apply the new preset after writing it")
	presetsCmd.AddCommand(presetsListCmd, presetsLoadCmd, presetsSaveCmd, presetsApplyCmd, presetsDeleteCmd)
}
