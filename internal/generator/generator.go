// Package generator implements the nix-store veritysetup systemd generator.
package generator

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nixos/nix-store-veritysetup-generator/internal/escape"
	"github.com/nixos/nix-store-veritysetup-generator/internal/storehash"
	"github.com/nixos/nix-store-veritysetup-generator/internal/veritysetup"
)

type Generator struct {
	Escaper         escape.Escaper
	VeritysetupPath string
	Logger          logrus.FieldLogger
}

func New(esc escape.Escaper, veritysetupPath string, logger logrus.FieldLogger) *Generator {
	return &Generator{
		Escaper:         esc,
		VeritysetupPath: veritysetupPath,
		Logger:          logger,
	}
}

// Generate writes the units for the storehash found in cmdline into
// destDir. It does nothing if the kernel command line has no storehash.
func (g *Generator) Generate(cmdline, destDir string) error {
	sh, ok := storehash.FromCmdline(cmdline)
	if !ok {
		g.Logger.Debugf("no %s= on the kernel command line, nothing to do", storehash.CmdlineArgName)
		return nil
	}

	dataDevice, err := sh.DataDevice()
	if err != nil {
		return err
	}
	hashDevice, err := sh.HashDevice()
	if err != nil {
		return err
	}
	g.Logger.WithFields(logrus.Fields{
		"data_device": dataDevice,
		"hash_device": hashDevice,
	}).Infof("Using verity data device %s, hash device %s, and hash %s for %s.",
		dataDevice, hashDevice, sh, veritysetup.VolumeName)

	serviceFile, err := veritysetup.ServiceFile(g.Escaper, g.VeritysetupPath, sh)
	if err != nil {
		return err
	}

	if err := Install(destDir, serviceFile); err != nil {
		return fmt.Errorf("failed to install %s into %s: %w", veritysetup.UnitName, destDir, err)
	}
	return nil
}
