package api

import (
	"encoding/json"
	"maps"
	"sync"

	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/mqtt"
)

// simulatedAppliance implements purelink.Session. It connects on Start,
// applies STATE-SET and answers REQUEST-CURRENT-STATE.
type simulatedAppliance struct {
	mu        sync.Mutex
	connected bool
	state     map[string]string
	sensors   map[string]string
	handler   mqtt.MessageHandler
	topic     string
	onConnect func()
}

func newSimulatedAppliance() *simulatedAppliance {
	return &simulatedAppliance{
		state:   map[string]string{"fmod": "FAN", "fnsp": "0004", "oson": "OFF", "nmod": "OFF", "filf": "4000"},
		sensors: map[string]string{"tact": "2950", "hact": "0045", "pm25": "0012", "pm10": "0020", "va10": "0030", "noxl": "0005"},
	}
}

func (a *simulatedAppliance) PublishAsync(_ string, payload []byte, _ byte) error {
	var env purelink.CommandEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}

	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return mqtt.ErrNotConnected
	}
	switch env.Msg {
	case purelink.MsgStateSet:
		maps.Copy(a.state, env.Data)
		a.mu.Unlock()
	case purelink.MsgRequestCurrentState:
		state, sensors, handler, topic := maps.Clone(a.state), maps.Clone(a.sensors), a.handler, a.topic
		a.mu.Unlock()
		go func() {
			s, _ := json.Marshal(map[string]any{"msg": purelink.MsgCurrentState, "product-state": state})
			e, _ := json.Marshal(map[string]any{"msg": purelink.MsgSensorData, "data": sensors})
			_ = handler(topic, s)
			_ = handler(topic, e)
		}()
	default:
		a.mu.Unlock()
	}
	return nil
}

func (a *simulatedAppliance) SubscribePersistent(topic string, _ byte, handler mqtt.MessageHandler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = handler
	a.topic = topic
	return nil
}

func (a *simulatedAppliance) SetOnConnect(cb func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onConnect = cb
}

func (a *simulatedAppliance) SetOnDisconnect(func(error)) {}

func (a *simulatedAppliance) Start() {
	a.mu.Lock()
	a.connected = true
	cb := a.onConnect
	a.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (a *simulatedAppliance) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *simulatedAppliance) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *simulatedAppliance) field(key string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state[key]
}
