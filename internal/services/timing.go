package services

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// TrackTime logs how long funcName took. Use as: defer TrackTime("name", time.Now()).
func TrackTime(funcName string, start time.Time) {
	elapsed := time.Since(start)
	log.WithField("elapsed_ms", elapsed.Milliseconds()).Debugf("%s took %s", funcName, elapsed.Round(time.Millisecond))
}
