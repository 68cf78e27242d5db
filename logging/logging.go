package logging

import (
	"fmt"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap/zapcore"
)

// SetLogLevels sets levels for the given systems. The "*" system applies to
// every registered subsystem and is applied first, so named systems override it.
func SetLogLevels(systems map[string]logging.LogLevel) error {
	if level, ok := systems["*"]; ok {
		logging.SetAllLoggers(level)
	}
	for sys, level := range systems {
		if sys == "*" {
			continue
		}
		if err := logging.SetLogLevel(sys, zapcore.Level(level).CapitalString()); err != nil {
			return fmt.Errorf("setting %s to %s: %s", sys, zapcore.Level(level), err)
		}
	}
	return nil
}

// ParseLevels parses overrides of the form "auctioneer=debug,msgbroker/kafka=warn".
func ParseLevels(s string) (map[string]logging.LogLevel, error) {
	levels := make(map[string]logging.LogLevel)
	for _, pair := range strings.Split(s, ",") {
		if pair = strings.TrimSpace(pair); pair == "" {
			continue
		}
		sys, name, ok := strings.Cut(pair, "=")
		if !ok || sys == "" {
			return nil, fmt.Errorf("malformed log level %q, want system=level", pair)
		}
		level, err := logging.LevelFromString(name)
		if err != nil {
			return nil, fmt.Errorf("parsing level of %s: %s", sys, err)
		}
		levels[sys] = level
	}
	return levels, nil
}
