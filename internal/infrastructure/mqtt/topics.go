package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes. Everything the core publishes or consumes lives under
// TopicPrefix.
const (
	TopicPrefix = "controlnet"

	TopicPrefixEvent  = "controlnet/event"
	TopicPrefixSignal = "controlnet/signal"
	TopicPrefixSystem = "controlnet/system"
	TopicPrefixRemote = "controlnet/remote"
)

// Topics provides builders for controlnet MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Signal("pump-1")          // controlnet/signal/pump-1
//	topics.Event("alarmRaised")      // controlnet/event/alarmRaised
//	topics.RemoteCommand("site-b")   // controlnet/remote/site-b/command
type Topics struct{}

// ─── Events ─────────────────────────────────────────────────────

// Event returns the topic a bus event is exported on.
//
// Example: controlnet/event/emergencyStopActivated
func (Topics) Event(name string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvent, name)
}

// AllEvents returns a pattern matching every exported event.
func (Topics) AllEvents() string {
	return TopicPrefixEvent + "/+"
}

// ─── Signals ────────────────────────────────────────────────────

// Signal returns the ingress topic for signals sent by a node.
//
// Example: controlnet/signal/sensor-tank-1
func (Topics) Signal(nodeID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixSignal, nodeID)
}

// AllSignals returns a pattern matching signal ingress from every node.
func (Topics) AllSignals() string {
	return TopicPrefixSignal + "/+"
}

// ─── Remote sites ───────────────────────────────────────────────

// RemoteCommand returns the topic commands for a remote site are sent on.
func (Topics) RemoteCommand(siteID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixRemote, siteID)
}

// RemoteHeartbeat returns the topic a remote site reports liveness on.
func (Topics) RemoteHeartbeat(siteID string) string {
	return fmt.Sprintf("%s/%s/heartbeat", TopicPrefixRemote, siteID)
}

// AllRemoteHeartbeats returns a pattern matching heartbeats from every site.
func (Topics) AllRemoteHeartbeats() string {
	return TopicPrefixRemote + "/+/heartbeat"
}

// ─── System ─────────────────────────────────────────────────────

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// ─── Parsing ────────────────────────────────────────────────────

// SignalNodeID extracts the node ID from a signal ingress topic.
func SignalNodeID(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicPrefixSignal+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// RemoteSiteID extracts the site ID from a remote heartbeat or command topic.
func RemoteSiteID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixRemote+"/")
	if !ok {
		return "", false
	}
	id, _, found := strings.Cut(rest, "/")
	if !found || id == "" {
		return "", false
	}
	return id, true
}
