package mqtt

import (
	"fmt"
	"strings"
)

// Appliance topic suffixes.
const (
	statusSuffix  = "status/current"
	commandSuffix = "command"
)

// Topics provides builders for appliance MQTT topics.
//
// Appliances publish on {model}/{deviceId}/status/current and accept
// commands on {model}/{deviceId}/command:
//
//	topics := mqtt.Topics{}
//	topics.ApplianceStatus("455", "NN2-EU-KJA1234A")
//	// Returns: "455/NN2-EU-KJA1234A/status/current"
type Topics struct{}

// ApplianceStatus returns the topic an appliance reports state on.
func (Topics) ApplianceStatus(model, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", model, deviceID, statusSuffix)
}

// ApplianceCommand returns the topic an appliance accepts commands on.
func (Topics) ApplianceCommand(model, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", model, deviceID, commandSuffix)
}

// TopicKind classifies a parsed appliance topic.
type TopicKind int

// Topic kinds.
const (
	TopicUnknown TopicKind = iota
	TopicStatus
	TopicCommand
)

// ApplianceTopic is a parsed appliance topic.
type ApplianceTopic struct {
	Model    string
	DeviceID string
	Kind     TopicKind
}

// ParseApplianceTopic splits an appliance topic into its parts.
func (Topics) ParseApplianceTopic(topic string) (ApplianceTopic, error) {
	parts := strings.SplitN(topic, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return ApplianceTopic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	t := ApplianceTopic{Model: parts[0], DeviceID: parts[1]}
	switch parts[2] {
	case statusSuffix:
		t.Kind = TopicStatus
	case commandSuffix:
		t.Kind = TopicCommand
	default:
		return ApplianceTopic{}, fmt.Errorf("%w: unknown suffix in %q", ErrInvalidTopic, topic)
	}
	return t, nil
}
