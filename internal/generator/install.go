package generator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nixos/nix-store-veritysetup-generator/internal/veritysetup"
)

// Install writes the service file into destDir and links it from
// veritysetup.target.requires so that it is pulled into the transaction.
// Nothing is rolled back if a later step fails.
func Install(destDir, serviceFile string) error {
	unitPath := filepath.Join(destDir, veritysetup.UnitName)
	/* #nosec G306 */
	if err := os.WriteFile(unitPath, []byte(serviceFile), 0644); err != nil {
		return fmt.Errorf("failed to create service file: %w", err)
	}

	requiresDir := filepath.Join(destDir, veritysetup.RequiresDir)
	if err := os.Mkdir(requiresDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", veritysetup.RequiresDir, err)
	}

	if err := os.Symlink(unitPath, filepath.Join(requiresDir, veritysetup.UnitName)); err != nil {
		return fmt.Errorf("failed to link %s into %s: %w", veritysetup.UnitName, veritysetup.RequiresDir, err)
	}
	return nil
}
