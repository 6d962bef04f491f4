package purelink

import (
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
)

// serialPattern extracts the device id and model code from a serial number.
var serialPattern = regexp.MustCompile(`DYSON-(\w{3}-\w{2}-\w{8})-(\w{3})`)

// accessoryNamespace seeds name-based accessory UUIDs.
var accessoryNamespace = uuid.MustParse("6f0c2d8e-4a55-4b8e-9d51-2b1f6c0e7a13")

// Model codes with distinct behaviour.
var (
	heatCapableModels   = map[string]bool{"455": true, "527": true}
	newGenerationModels = map[string]bool{"438": true, "520": true, "527": true}
)

// Identity is what a serial number encodes about an appliance.
type Identity struct {
	Serial   string
	DeviceID string
	Model    string
}

// ParseSerial extracts the device id and model code.
func ParseSerial(serial string) (Identity, error) {
	m := serialPattern.FindStringSubmatch(serial)
	if m == nil {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidSerial, serial)
	}
	return Identity{Serial: serial, DeviceID: m[1], Model: m[2]}, nil
}

// UUID returns a stable name-based UUID for the accessory.
func (id Identity) UUID() uuid.UUID {
	return uuid.NewSHA1(accessoryNamespace, []byte(id.Serial))
}

// StatusTopic is the topic the appliance reports on.
func (id Identity) StatusTopic() string {
	return topics.ApplianceStatus(id.Model, id.DeviceID)
}

// CommandTopic is the topic the appliance accepts commands on.
func (id Identity) CommandTopic() string {
	return topics.ApplianceCommand(id.Model, id.DeviceID)
}

// Capabilities returns the model's capability flags. nightModeInverted is
// configured per appliance because firmware versions disagree on polarity.
func (id Identity) Capabilities(nightModeInverted bool) Capabilities {
	return Capabilities{
		HeatAvailable:     heatCapableModels[id.Model],
		NewGeneration:     newGenerationModels[id.Model],
		NightModeInverted: nightModeInverted,
	}
}

// DeriveCredential returns the broker password for an appliance.
//
// In auto mode legacy models expect base64(sha512(password)) and
// new-generation models the password verbatim; hashed and plain force
// one form.
func DeriveCredential(password, mode string, id Identity) (string, error) {
	if password == "" {
		return "", ErrInvalidCredential
	}

	switch mode {
	case "", config.CredentialAuto:
		if newGenerationModels[id.Model] {
			return password, nil
		}
		return hashCredential(password), nil
	case config.CredentialHashed:
		return hashCredential(password), nil
	case config.CredentialPlain:
		return password, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCredentialMode, mode)
	}
}

func hashCredential(password string) string {
	sum := sha512.Sum512([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}
