package services

import (
	"log"
	"os"
	"strings"
)

var debugEnabled = false

func init() {
	// Enable debug logging if YGO_DEBUG=1 or YGO_DEBUG=true
	if v := os.Getenv("YGO_DEBUG"); v != "" {
		v = strings.ToLower(v)
		debugEnabled = v == "1" || v == "true" || v == "yes"
		if debugEnabled {
			log.Println("[YGO] Debug logging: ENABLED")
		}
	}
}

// debugLog logs only when YGO_DEBUG is enabled.
// Use this for per-lookup details, cache hits/misses, match scores, etc.
func debugLog(component, format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("["+component+" DEBUG] "+format, args...)
	}
}

// infoLog always logs important events.
// Use this for backend failures, swallowed persistence errors, cache stats, etc.
func infoLog(component, format string, args ...interface{}) {
	log.Printf("["+component+"] "+format, args...)
}
