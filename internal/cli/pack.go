package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	skerrors "github.com/gzhole/skillgate/internal/errors"
	"github.com/gzhole/skillgate/internal/rules"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Manage skill rule packs",
	Long: `Manage skill rule packs.

Packs are extra rule documents (JSON, YAML or TOML) stored in the
skill-rules.d directory next to skill-rules.json and merged into it at
load time. A pack whose file name starts with an underscore is disabled.

Examples:
  skillgate pack list                 # List installed packs
  skillgate pack enable db-guards     # Enable a pack
  skillgate pack disable db-guards    # Disable a pack
  skillgate pack show db-guards       # Show pack contents`,
}

var packListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed rule packs",
	RunE:  packList,
}

var packEnableCmd = &cobra.Command{
	Use:   "enable <pack-name>",
	Short: "Enable a disabled rule pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packEnable,
}

var packDisableCmd = &cobra.Command{
	Use:   "disable <pack-name>",
	Short: "Disable a rule pack (prefix with underscore)",
	Args:  cobra.ExactArgs(1),
	RunE:  packDisable,
}

var packShowCmd = &cobra.Command{
	Use:   "show <pack-name>",
	Short: "Show the contents of a rule pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packShow,
}

func init() {
	packCmd.AddCommand(packListCmd)
	packCmd.AddCommand(packEnableCmd)
	packCmd.AddCommand(packDisableCmd)
	packCmd.AddCommand(packShowCmd)
	rootCmd.AddCommand(packCmd)
}

func packsDir() (string, error) {
	path, err := resolveRules("")
	if err != nil {
		return "", err
	}
	return rules.PacksDir(path), nil
}

// findPack locates a pack file by name in either state.
func findPack(dir, name string) (path string, enabled bool, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", false, err
	}
	for _, e := range entries {
		if e.IsDir() || !rules.IsRuleFile(e.Name()) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		switch stem {
		case name:
			return filepath.Join(dir, e.Name()), true, nil
		case "_" + name:
			return filepath.Join(dir, e.Name()), false, nil
		}
	}
	return "", false, skerrors.Newf("pack '%s' not found in %s", name, dir)
}

func packList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir, err := packsDir()
	if err != nil {
		return err
	}

	_, infos, _, err := rules.LoadPacks(dir, &rules.Document{Skills: map[string]*rules.SkillRule{}})
	if len(infos) == 0 {
		fmt.Fprintln(out, "No rule packs installed.")
		fmt.Fprintf(out, "\nTo install packs, copy rule files to: %s\n", dir)
		return nil
	}

	fmt.Fprintln(out, "Installed Rule Packs:")
	fmt.Fprintln(out, strings.Repeat("─", 60))
	for _, info := range infos {
		status := "✅"
		if !info.Enabled {
			status = "❌"
		}
		fmt.Fprintf(out, "  %s  %-25s %s\n", status, info.Name, info.Description)
		switch {
		case info.Err != nil:
			fmt.Fprintf(out, "       error: %v\n", info.Err)
		case info.Version != "":
			fmt.Fprintf(out, "       v%s  (%d skills)\n", info.Version, info.SkillCount)
		default:
			fmt.Fprintf(out, "       (%d skills)\n", info.SkillCount)
		}
	}
	fmt.Fprintln(out, strings.Repeat("─", 60))
	fmt.Fprintf(out, "\nPacks directory: %s\n", dir)
	if err != nil {
		fmt.Fprintf(out, "\n⚠  An enabled pack is broken; matching is disabled until it is fixed.\n")
	}
	return nil
}

func packEnable(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}

	name := args[0]
	path, enabled, err := findPack(dir, name)
	if err != nil {
		return err
	}
	if enabled {
		fmt.Fprintf(cmd.OutOrStdout(), "Pack '%s' is already enabled.\n", name)
		return nil
	}

	target := filepath.Join(dir, strings.TrimPrefix(filepath.Base(path), "_"))
	if err := os.Rename(path, target); err != nil {
		return skerrors.Wrap(err, "failed to enable pack")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Pack '%s' enabled.\n", name)
	return nil
}

func packDisable(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}

	name := args[0]
	path, enabled, err := findPack(dir, name)
	if err != nil {
		return err
	}
	if !enabled {
		fmt.Fprintf(cmd.OutOrStdout(), "Pack '%s' is already disabled.\n", name)
		return nil
	}

	target := filepath.Join(dir, "_"+filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return skerrors.Wrap(err, "failed to disable pack")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "❌ Pack '%s' disabled.\n", name)
	return nil
}

func packShow(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}

	path, _, err := findPack(dir, args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
