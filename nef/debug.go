package nef

import (
	"log"
	"os"
)

var debugEnabled = os.Getenv("NEFKO_DEBUG") != ""

// debugf traces open and decode steps when NEFKO_DEBUG is set.
func debugf(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("nef: "+format, args...)
	}
}
