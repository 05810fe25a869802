// Package logging centralizes zerolog setup so every component gets a
// consistently-tagged logger without repeating the writer/level wiring.
package logging

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	base   zerolog.Logger
	setLvl zerolog.Level = zerolog.InfoLevel
)

// SetLevel adjusts the global minimum log level. Safe to call before Get.
func SetLevel(level zerolog.Level) {
	setLvl = level
	zerolog.SetGlobalLevel(level)
}

func initBase() {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if os.Getenv("VOICECORE_LOG_FORMAT") == "json" {
		base = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		base = zerolog.New(writer).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(setLvl)
}

// Get returns a logger tagged with the given component name.
func Get(component string) *zerolog.Logger {
	once.Do(initBase)
	l := base.With().Str("component", component).Logger()
	return &l
}
