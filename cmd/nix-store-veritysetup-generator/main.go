// nix-store-veritysetup-generator is a systemd generator that sets up
// dm-verity for the Nix store when the kernel command line carries a
// storehash= parameter.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nixos/nix-store-veritysetup-generator/internal/common"
	"github.com/nixos/nix-store-veritysetup-generator/internal/generator"
	"github.com/nixos/nix-store-veritysetup-generator/internal/storehash"
)

const identifier = "nix-store-veritysetup-generator"

type options struct {
	configFile      string
	cmdlinePath     string
	veritysetupPath string
	escapePath      string
	builtinEscape   bool
	debug           bool
}

func newRootCmd(getenv func(string) string, logger *logrus.Logger) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   identifier + " NORMAL_DIR [EARLY_DIR] [LATE_DIR]",
		Short: "Generate systemd-veritysetup@nix-store.service from the storehash= kernel parameter",
		Long: "Reads storehash= from the kernel command line and writes a veritysetup unit for the\n" +
			"Nix store into NORMAL_DIR. The early and late directories systemd passes are ignored.",
		Version:       common.Version(),
		Args:          cobra.RangeArgs(1, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := parseConfig(opts.configFile)
			if err != nil {
				return err
			}
			config.applyEnv(getenv)

			flags := cmd.Flags()
			if flags.Changed("cmdline") {
				config.CmdlinePath = opts.cmdlinePath
			}
			if flags.Changed("veritysetup") {
				config.VeritysetupPath = opts.veritysetupPath
			}
			if flags.Changed("escape") {
				config.EscapePath = opts.escapePath
			}
			if opts.builtinEscape {
				config.Escaper = escaperBuiltin
			}
			if opts.debug {
				config.Debug = true
			}
			if err := config.validate(); err != nil {
				return err
			}
			if config.Debug {
				logger.SetLevel(logrus.DebugLevel)
			}

			cmdline, err := storehash.ReadCmdline(config.CmdlinePath)
			if err != nil {
				return err
			}

			g := generator.New(config.escaper(), config.VeritysetupPath, logger)
			return g.Generate(cmdline, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", configFile, "configuration file, ignored if missing")
	flags.StringVar(&opts.cmdlinePath, "cmdline", "", "read the kernel command line from this file (default /proc/cmdline)")
	flags.StringVar(&opts.veritysetupPath, "veritysetup", "", "path of systemd-veritysetup used in the generated unit")
	flags.StringVar(&opts.escapePath, "escape", "", "path of systemd-escape")
	flags.BoolVar(&opts.builtinEscape, "builtin-escape", false, "escape unit names without running systemd-escape")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")

	return cmd
}

func run(args []string, getenv func(string) string, logger *logrus.Logger) error {
	cmd := newRootCmd(getenv, logger)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func main() {
	logger := common.NewLogger(identifier, false)
	if err := run(os.Args[1:], os.Getenv, logger); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
