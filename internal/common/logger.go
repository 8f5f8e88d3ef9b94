package common

import (
	"io"
	"os"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/sirupsen/logrus"
)

var (
	journalEnabled = journal.Enabled
	openKmsg       = func() (io.Writer, error) {
		return os.OpenFile(KmsgPath, os.O_WRONLY, 0)
	}
)

// NewLogger returns a logger for a process started by systemd. Entries go to
// the journal if it is running, to the kernel log otherwise and to stderr as
// a last resort.
func NewLogger(identifier string, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.AddHook(&BuildHook{})

	if journalEnabled() {
		logger.AddHook(&JournalHook{Identifier: identifier})
		logger.SetOutput(io.Discard)
		return logger
	}

	kmsg, err := openKmsg()
	if err != nil {
		logger.Debugf("cannot open %s, logging to stderr: %v", KmsgPath, err)
		return logger
	}
	logger.AddHook(NewKmsgHook(kmsg, identifier))
	logger.SetOutput(io.Discard)
	return logger
}
