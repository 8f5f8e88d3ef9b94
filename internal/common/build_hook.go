package common

import (
	"github.com/sirupsen/logrus"
)

// BuildHook tags errors with the build they were produced by.
type BuildHook struct {
}

func (h *BuildHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	}
}

func (h *BuildHook) Fire(e *logrus.Entry) error {
	e.Data["build_commit"] = BuildCommit

	return nil
}
