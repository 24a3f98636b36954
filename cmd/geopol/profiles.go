package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geopol/geopol-go/internal/profile"
)

func newProfilesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage map profiles",
		Long: `Manage map profiles stored on the backend and in the local cache.

Built-in profiles (default, analyst, meteo) cannot be overwritten or deleted.

Examples:
  geopol profiles list
  geopol profiles show analyst
  geopol profiles export ops --dir ~/exports
  geopol profiles import ops.json --name ops-copy
  geopol profiles delete ops --yes`,
	}

	cmd.AddCommand(
		newProfilesListCmd(opts),
		newProfilesShowCmd(opts),
		newProfilesDeleteCmd(opts),
		newProfilesExportCmd(opts),
		newProfilesImportCmd(opts),
		newProfilesSaveCmd(opts),
	)
	return cmd
}

// profileEnv builds the environment for a profiles subcommand
func profileEnv(cmd *cobra.Command, opts *options, assumeYes bool) (*environment, error) {
	return setup(opts, nil,
		profile.WithConfirmer(promptConfirmer(cmd, assumeYes)),
		profile.WithNotifier(stderrNotifier(cmd)))
}

func newProfilesListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in and saved profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := profileEnv(cmd, opts, false)
			if err != nil {
				return err
			}
			defer env.Close()
			ctx, cancel := commandContext(cmd, env)
			defer cancel()

			remembered := ""
			if env.store != nil {
				if name, err := env.store.CurrentProfile(); err == nil {
					remembered = name
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %-20s %-9s %s\n", "NAME", "TYPE", "DESCRIPTION")
			for _, s := range env.profiles.ListProfiles(ctx) {
				mark := " "
				if s.Name == remembered {
					mark = "*"
				}
				kind := "custom"
				if s.BuiltIn {
					kind = "built-in"
				}
				fmt.Fprintf(out, "%s %-20s %-9s %s\n", mark, s.Name, kind, s.Description)
			}
			return nil
		},
	}
}

func newProfilesShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print a profile as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := profileEnv(cmd, opts, false)
			if err != nil {
				return err
			}
			defer env.Close()
			ctx, cancel := commandContext(cmd, env)
			defer cancel()

			p, ok := env.profiles.LoadProfile(ctx, args[0], false)
			if !ok {
				return errReported
			}
			data, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newProfilesDeleteCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := profileEnv(cmd, opts, yes)
			if err != nil {
				return err
			}
			defer env.Close()
			ctx, cancel := commandContext(cmd, env)
			defer cancel()

			if !env.profiles.DeleteProfile(ctx, args[0]) {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newProfilesExportCmd(opts *options) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export NAME",
		Short: "Write a profile to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := profileEnv(cmd, opts, false)
			if err != nil {
				return err
			}
			defer env.Close()
			ctx, cancel := commandContext(cmd, env)
			defer cancel()

			path, err := env.profiles.ExportProfile(ctx, args[0], dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Output directory (default: export directory from settings)")
	return cmd
}

func newProfilesImportCmd(opts *options) *cobra.Command {
	var (
		name string
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Validate a profile file and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := profileEnv(cmd, opts, yes)
			if err != nil {
				return err
			}
			defer env.Close()
			ctx, cancel := commandContext(cmd, env)
			defer cancel()

			if _, err := env.profiles.ImportProfileFromFile(ctx, args[0], name); err != nil {
				if errors.Is(err, profile.ErrCancelled) {
					fmt.Fprintln(cmd.ErrOrStderr(), "Import cancelled")
					return nil
				}
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Save under this name instead of the one in the file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Overwrite an existing profile without asking")
	return cmd
}

func newProfilesSaveCmd(opts *options) *cobra.Command {
	var (
		description string
		fromState   bool
		yes         bool
	)
	cmd := &cobra.Command{
		Use:   "save NAME",
		Short: "Save the last used view under a new name",
		Long: `Save the last used view under a new name.

The remembered profile is applied to a headless map and the resulting
state is saved. With --from-state the backend builds the profile from
the captured state instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := profileEnv(cmd, opts, yes)
			if err != nil {
				return err
			}
			defer env.Close()
			ctx, cancel := commandContext(cmd, env)
			defer cancel()

			if _, ok := env.profiles.RestoreRemembered(ctx); !ok {
				return errReported
			}

			if fromState {
				p, err := env.profiles.SaveStateToBackend(ctx, args[0], description)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Profile %q saved by the backend\n", p.Name)
				return nil
			}
			if !env.profiles.SaveCurrentAsProfile(ctx, args[0], description) {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Profile description")
	cmd.Flags().BoolVar(&fromState, "from-state", false, "Let the backend build the profile from the current state")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Overwrite an existing profile without asking")
	return cmd
}
