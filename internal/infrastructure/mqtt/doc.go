// Package mqtt provides per-appliance MQTT sessions for the airlink bridge.
//
// Every appliance runs its own broker on its LAN address; the bridge holds
// one session per appliance. This package manages:
//   - Background connect with auto-reconnect and capped backoff
//   - Subscriptions that are re-applied on every connect acknowledgement
//   - Synchronous and fire-and-forget publishing
//   - Appliance topic builders
//
// # Ordering
//
// Inbound messages for one session are delivered in arrival order on a
// single goroutine. Handlers must not block; call PublishAsync rather than
// Publish from inside a handler.
//
// # Usage
//
//	opts, err := mqtt.OptionsFor(cfg.MQTT, "192.168.1.20", "airlink-NN2", "NN2-EU-KJA1234A", key)
//	if err != nil {
//	    return err
//	}
//	client := mqtt.NewClient(opts)
//	client.SetOnConnect(func() { ... })
//	_ = client.SubscribePersistent(mqtt.Topics{}.ApplianceStatus("455", "NN2-EU-KJA1234A"), 1,
//	    func(topic string, payload []byte) error {
//	        return engine.HandleMessage(payload)
//	    })
//	client.Start()
//	defer client.Close()
package mqtt
