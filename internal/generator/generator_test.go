package generator_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixos/nix-store-veritysetup-generator/internal/escape"
	"github.com/nixos/nix-store-veritysetup-generator/internal/generator"
	"github.com/nixos/nix-store-veritysetup-generator/internal/storehash"
)

const (
	testStorehash = "94821122dbec8355df07f3670177b0cb147683a355c07da6a2fb85313cc02254"
	testCmdline   = "initrd=\\EFI\\nixos\\initrd.efi storehash=" + testStorehash + " quiet\n"
	unitName      = "systemd-veritysetup@nix-store.service"
)

func newGenerator(t *testing.T) (*generator.Generator, *logrusTest.Hook) {
	t.Helper()

	logger, hook := logrusTest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return generator.New(escape.Builtin{}, "systemd-veritysetup", logger), hook
}

func readDir(t *testing.T, dir string) []string {
	t.Helper()

	var names []string
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestGenerate(t *testing.T) {
	g, hook := newGenerator(t)
	dest := t.TempDir()

	require.NoError(t, g.Generate(testCmdline, dest))

	unitPath := filepath.Join(dest, unitName)
	content, err := os.ReadFile(unitPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "ExecStart=systemd-veritysetup attach nix-store "+
		"/dev/disk/by-partuuid/94821122-dbec-8355-df07-f3670177b0cb "+
		"/dev/disk/by-partuuid/147683a3-55c0-7da6-a2fb-85313cc02254 "+testStorehash+"\n")

	target, err := os.Readlink(filepath.Join(dest, "veritysetup.target.requires", unitName))
	require.NoError(t, err)
	assert.Equal(t, unitPath, target)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "Using verity data device /dev/disk/by-partuuid/94821122-dbec-8355-df07-f3670177b0cb, "+
		"hash device /dev/disk/by-partuuid/147683a3-55c0-7da6-a2fb-85313cc02254, "+
		"and hash "+testStorehash+" for nix-store.", entry.Message)
	assert.Equal(t, "/dev/disk/by-partuuid/147683a3-55c0-7da6-a2fb-85313cc02254", entry.Data["hash_device"])
}

func TestGenerateDeterministic(t *testing.T) {
	g, _ := newGenerator(t)
	first, second := t.TempDir(), t.TempDir()

	require.NoError(t, g.Generate(testCmdline, first))
	require.NoError(t, g.Generate(testCmdline, second))

	a, err := os.ReadFile(filepath.Join(first, unitName))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(second, unitName))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, readDir(t, first), readDir(t, second))
}

func TestGenerateAbsent(t *testing.T) {
	g, hook := newGenerator(t)
	dest := t.TempDir()

	g.Escaper = escape.Func(func(s string) (string, error) {
		t.Fatalf("escaper called for %s", s)
		return "", nil
	})

	require.NoError(t, g.Generate("quiet root=/dev/sda1", dest))
	assert.Empty(t, readDir(t, dest))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
}

func TestGenerateMalformed(t *testing.T) {
	for _, cmdline := range []string{
		"storehash=",
		"storehash=94821122dbec",
		"storehash=" + testStorehash[:32],
		"storehash=" + testStorehash + "0",
		"storehash=" + testStorehash[:40] + "xyz" + testStorehash[43:],
	} {
		t.Run(cmdline, func(t *testing.T) {
			g, hook := newGenerator(t)
			dest := t.TempDir()

			err := g.Generate(cmdline, dest)
			require.ErrorIs(t, err, storehash.ErrMalformed)
			assert.Empty(t, readDir(t, dest))
			assert.Empty(t, hook.AllEntries())
		})
	}
}

func TestGenerateMissingDestination(t *testing.T) {
	g, _ := newGenerator(t)
	dest := filepath.Join(t.TempDir(), "missing")

	err := g.Generate(testCmdline, dest)
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "failed to create service file")
}

func TestInstallLeavesServiceFileOnFailure(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "veritysetup.target.requires"), nil, 0600))

	err := generator.Install(dest, "[Unit]\n")
	require.ErrorIs(t, err, os.ErrExist)

	content, err := os.ReadFile(filepath.Join(dest, unitName))
	require.NoError(t, err)
	assert.Equal(t, "[Unit]\n", string(content))
}

func TestInstallExistingLink(t *testing.T) {
	dest := t.TempDir()
	requires := filepath.Join(dest, "veritysetup.target.requires")
	require.NoError(t, generator.Install(dest, "[Unit]\n"))

	require.NoError(t, os.Remove(filepath.Join(requires, unitName)))

	// the requires directory must not exist yet
	err := generator.Install(dest, "[Unit]\n")
	require.ErrorIs(t, err, os.ErrExist)
	assert.Contains(t, err.Error(), "veritysetup.target.requires")
}
