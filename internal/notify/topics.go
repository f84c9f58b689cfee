package notify

import "strings"

// TopicPrefix is the root of every topic published by this service.
const TopicPrefix = "netpulse"

// Topics builds the topic strings used by the dispatcher.
//
// Layout:
//
//	netpulse/system/status            retained service presence
//	netpulse/alert/{severity}/{key}   health transition events
type Topics struct{}

// SystemStatus returns the retained service presence topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// Alert returns the topic for a health transition event. Severity and
// metric key are sanitised so they can never introduce topic levels or
// wildcards.
func (Topics) Alert(severity, metricKey string) string {
	return TopicPrefix + "/alert/" + sanitizeLevel(severity) + "/" + sanitizeLevel(metricKey)
}

// sanitizeLevel strips characters with special meaning in MQTT topic
// filters.
func sanitizeLevel(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		return r
	}, s)
	if s == "" {
		return "_"
	}
	return s
}
