package common

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// KmsgPath is the kernel log device. Generators run before journald is up
// and /dev/kmsg is the only place their output is kept.
const KmsgPath = "/dev/kmsg"

// The kernel truncates longer records.
const kmsgMaxLine = 1024

// KmsgHook writes entries as kernel log records in the
// "<priority>identifier: message" form.
type KmsgHook struct {
	Identifier string

	mu sync.Mutex
	w  io.Writer
}

func NewKmsgHook(w io.Writer, identifier string) *KmsgHook {
	return &KmsgHook{Identifier: identifier, w: w}
}

func (hook *KmsgHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *KmsgHook) Fire(entry *logrus.Entry) error {
	var b bytes.Buffer
	// syslog priorities are the same as the journal's
	fmt.Fprintf(&b, "<%d>%s: %s", severityMap[entry.Level], hook.Identifier, entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}

	line := b.Bytes()
	if len(line) > kmsgMaxLine-1 {
		line = line[:kmsgMaxLine-1]
	}
	line = append(line, '\n')

	hook.mu.Lock()
	defer hook.mu.Unlock()
	// one write per record, /dev/kmsg does not buffer partial lines
	_, err := hook.w.Write(line)
	return err
}
