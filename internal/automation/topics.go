package automation

import "strings"

// Topics builds the MQTT topic tree under a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	return t.Prefix + "/" + strings.Join(parts, "/")
}

func (t Topics) Event(kind string) string { return t.join("event", kind) }

func (t Topics) State() string { return t.join("state") }

func (t Topics) Status() string { return t.join("status") }

func (t Topics) Action(name string) string { return t.join("action", name) }

func (t Topics) ActionWildcard() string { return t.join("action", "+") }

func (t Topics) ActionResult(name string) string { return t.join("action", name, "result") }

// ActionName extracts the action from an action topic. Result topics are
// not actions.
func (t Topics) ActionName(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.join("action")+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
