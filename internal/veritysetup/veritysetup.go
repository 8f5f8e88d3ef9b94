// Package veritysetup renders the systemd-veritysetup@nix-store.service unit
// that attaches the verity protected Nix store.
package veritysetup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"

	"github.com/nixos/nix-store-veritysetup-generator/internal/escape"
	"github.com/nixos/nix-store-veritysetup-generator/internal/storehash"
)

const (
	// UnitName is the name of the generated service.
	UnitName = "systemd-veritysetup@nix-store.service"

	// RequiresDir pulls UnitName into the boot transaction.
	RequiresDir = "veritysetup.target.requires"

	// VolumeName is the device mapper name, the store ends up at
	// /dev/mapper/nix-store.
	VolumeName = "nix-store"

	DefaultVeritysetupPath = "/usr/lib/systemd/systemd-veritysetup"
)

var ErrNotAbsolute = errors.New("device path is not absolute")

// Params are the inputs of the service unit.
type Params struct {
	// VeritysetupPath is the systemd-veritysetup binary
	VeritysetupPath string

	DataDevice string
	HashDevice string
	DataUnit   string
	HashUnit   string

	Storehash storehash.Storehash
}

// DeviceUnit converts a device path into the name of its systemd device
// unit, e.g. /dev/vda becomes dev-vda.device.
func DeviceUnit(esc escape.Escaper, devicePath string) (string, error) {
	stripped, ok := strings.CutPrefix(devicePath, "/")
	if !ok {
		return "", fmt.Errorf("failed to strip '/' from %s: %w", devicePath, ErrNotAbsolute)
	}
	escaped, err := esc.Escape(stripped)
	if err != nil {
		return "", fmt.Errorf("failed to escape %s: %w", stripped, err)
	}
	return escaped + ".device", nil
}

// Options returns the unit options of the service in file order.
func Options(p Params) []*unit.UnitOption {
	devices := p.DataUnit + " " + p.HashUnit
	return []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "Integrity Protection Setup for %I"),
		unit.NewUnitOption("Unit", "DefaultDependencies", "no"),
		unit.NewUnitOption("Unit", "IgnoreOnIsolate", "true"),
		unit.NewUnitOption("Unit", "After", "veritysetup-pre.target systemd-udevd-kernel.socket"),
		unit.NewUnitOption("Unit", "Before", "blockdev@dev-mapper-%i.target"),
		unit.NewUnitOption("Unit", "Wants", "blockdev@dev-mapper-%i.target"),
		unit.NewUnitOption("Unit", "Before", "veritysetup.target"),
		unit.NewUnitOption("Unit", "BindsTo", devices),
		unit.NewUnitOption("Unit", "After", devices),

		unit.NewUnitOption("Service", "Type", "oneshot"),
		unit.NewUnitOption("Service", "RemainAfterExit", "yes"),
		unit.NewUnitOption("Service", "ExecStart", strings.Join([]string{
			p.VeritysetupPath, "attach", VolumeName, p.DataDevice, p.HashDevice, p.Storehash.String(),
		}, " ")),
		unit.NewUnitOption("Service", "ExecStop", strings.Join([]string{
			p.VeritysetupPath, "detach", VolumeName,
		}, " ")),
	}
}

// Serialize writes the options grouped by section in order of first
// appearance. Unlike unit.Serialize it puts no blank line between sections.
func Serialize(opts []*unit.UnitOption) string {
	var sections []string
	bySection := make(map[string][]*unit.UnitOption)
	for _, opt := range opts {
		if _, ok := bySection[opt.Section]; !ok {
			sections = append(sections, opt.Section)
		}
		bySection[opt.Section] = append(bySection[opt.Section], opt)
	}

	var b strings.Builder
	for _, section := range sections {
		fmt.Fprintf(&b, "[%s]\n", section)
		for _, opt := range bySection[section] {
			fmt.Fprintf(&b, "%s=%s\n", opt.Name, opt.Value)
		}
	}
	return b.String()
}

// Render returns the contents of the service file.
func Render(p Params) string {
	return Serialize(Options(p))
}

// ServiceFile resolves the devices of sh and renders the service file.
func ServiceFile(esc escape.Escaper, veritysetupPath string, sh storehash.Storehash) (string, error) {
	dataDevice, err := sh.DataDevice()
	if err != nil {
		return "", err
	}
	hashDevice, err := sh.HashDevice()
	if err != nil {
		return "", err
	}

	dataUnit, err := DeviceUnit(esc, dataDevice)
	if err != nil {
		return "", fmt.Errorf("failed to convert %s to systemd unit name: %w", dataDevice, err)
	}
	hashUnit, err := DeviceUnit(esc, hashDevice)
	if err != nil {
		return "", fmt.Errorf("failed to convert %s to systemd unit name: %w", hashDevice, err)
	}

	return Render(Params{
		VeritysetupPath: veritysetupPath,
		DataDevice:      dataDevice,
		HashDevice:      hashDevice,
		DataUnit:        dataUnit,
		HashUnit:        hashUnit,
		Storehash:       sh,
	}), nil
}
