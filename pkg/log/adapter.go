package log

import "github.com/sirupsen/logrus"

// BadgerAdapter routes badger's internal logging through the application
// logger so the job mirror shows up under the shared fields.
type BadgerAdapter struct {
	entry *logrus.Entry
}

func NewBadgerAdapter(entry *logrus.Entry) *BadgerAdapter {
	return &BadgerAdapter{entry: entry}
}

func (a *BadgerAdapter) Errorf(f string, v ...interface{})   { a.entry.Errorf(f, v...) }
func (a *BadgerAdapter) Warningf(f string, v ...interface{}) { a.entry.Warningf(f, v...) }
func (a *BadgerAdapter) Infof(f string, v ...interface{})    { a.entry.Infof(f, v...) }

// Debugf maps to trace level: badger's compaction chatter would otherwise
// drown the crawl's own debug output
func (a *BadgerAdapter) Debugf(f string, v ...interface{}) { a.entry.Tracef(f, v...) }
