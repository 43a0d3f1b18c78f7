package reactor

import "strings"

// Topic suffixes below the namespace root.
const (
	topicStatus         = "status"
	topicTelemetry      = "telemetry"
	topicSetpointPrefix = "set/"
	topicConsolePrefix  = "console/"
)

// Namespace builds and parses topics under a single device root such as
// "bio/v1".
type Namespace struct {
	root string
}

// NewNamespace returns a namespace rooted at root. Trailing slashes are
// dropped; a leading slash is kept since "/bio" and "bio" are different
// MQTT topics.
func NewNamespace(root string) Namespace {
	return Namespace{root: strings.TrimRight(root, "/")}
}

// Root returns the normalised root.
func (n Namespace) Root() string { return n.root }

// Resolve prefixes a relative topic with the root.
func (n Namespace) Resolve(rel string) string { return n.root + "/" + rel }

// Status returns the device lifecycle topic.
func (n Namespace) Status() string { return n.Resolve(topicStatus) }

// Telemetry returns the sensor telemetry topic.
func (n Namespace) Telemetry() string { return n.Resolve(topicTelemetry) }

// Setpoint returns the setpoint topic of ch.
func (n Namespace) Setpoint(ch Channel) string { return n.Resolve(setpointTopic(ch)) }

// Wildcard returns the filter matching every topic under the root.
func (n Namespace) Wildcard() string { return n.Resolve("#") }

// ConsolePresence returns the retained presence topic of a console client.
// The router does not interpret it.
func (n Namespace) ConsolePresence(clientID string) string {
	return n.Resolve(topicConsolePrefix + clientID)
}

// Relative strips the root from topic. It reports false for topics outside
// the namespace.
func (n Namespace) Relative(topic string) (string, bool) {
	return strings.CutPrefix(topic, n.root+"/")
}

func setpointTopic(ch Channel) string {
	return topicSetpointPrefix + string(ch)
}
