package connectors

const (
	TopicReady       = "bridge.ready"
	TopicMessage     = "bridge.message"
	TopicSendSuccess = "bridge.send_success"
	TopicSendFailed  = "bridge.send_failed"
	TopicState       = "bridge.state"
	TopicNodeInfo    = "mesh.nodeinfo"
	// TopicTextSent carries outbound texts accepted by the radio link. It is
	// journal-only and not part of the automation events.
	TopicTextSent    = "bridge.text_sent"
	TopicConnStatus  = "conn.status"
	TopicRawFrameIn  = "raw.frame.in"
	TopicRawFrameOut = "raw.frame.out"
)

// EventKindSent marks a BridgeEvent published on TopicTextSent.
const EventKindSent = "sent"

// EventTopics lists the topics carrying BridgeEvent payloads.
var EventTopics = []string{TopicReady, TopicMessage, TopicSendSuccess, TopicSendFailed}

// TopicForEvent maps an event kind to its bus topic.
func TopicForEvent(kind string) (string, bool) {
	switch kind {
	case "ready":
		return TopicReady, true
	case "message":
		return TopicMessage, true
	case "send_success":
		return TopicSendSuccess, true
	case "send_failed":
		return TopicSendFailed, true
	default:
		return "", false
	}
}
