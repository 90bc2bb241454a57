package logger

import (
	"go.uber.org/zap"
)

// L is the process-wide logger. It defaults to a no-op logger so packages can
// log safely before New is called (tests, mainly).
var L = zap.NewNop()

// New builds the production logger and installs it as L.
func New(debug bool) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}

	L = l
	return l, nil
}
