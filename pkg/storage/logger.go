package storage

import "github.com/sirupsen/logrus"

// badgerLogger routes badger's internal logging through logrus
// Badger reports routine compaction and replay at info level, which is demoted to debug.
type badgerLogger struct {
	*logrus.Entry
}

func newBadgerLogger(entry *logrus.Entry) *badgerLogger {
	return &badgerLogger{entry}
}

func (l *badgerLogger) Errorf(f string, v ...interface{})   { l.Entry.Errorf(f, v...) }
func (l *badgerLogger) Warningf(f string, v ...interface{}) { l.Entry.Warnf(f, v...) }
func (l *badgerLogger) Infof(f string, v ...interface{})    { l.Entry.Debugf(f, v...) }
func (l *badgerLogger) Debugf(f string, v ...interface{})   { l.Entry.Tracef(f, v...) }
