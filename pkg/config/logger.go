package config

import "github.com/entrhq/browserpilot/pkg/logging"

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("config")
	if err != nil {
		debugLog.Warnf("file logging unavailable: %v", err)
	}
}
