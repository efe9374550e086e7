// Package logging builds the prefixed stdlib loggers the binaries hand to
// their components.
package logging

import (
	"log"
	"os"
)

func NewStdLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags|log.LUTC)
}

// Component derives a logger that extends the parent's prefix with a
// component name, keeping concurrent components tellable apart in one
// stream.
func Component(parent *log.Logger, name string) *log.Logger {
	if parent == nil {
		return NewStdLogger(name + " ")
	}
	return log.New(parent.Writer(), parent.Prefix()+name+" ", parent.Flags())
}
