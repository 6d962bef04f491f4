// Package accessory presents bridged appliances to a home-automation host.
//
// Each appliance is exposed as a set of named characteristics (fan_on,
// speed, temperature, heating_threshold, ...) grouped into services. A
// Binder supplied by the host receives a Getter and Setter per
// characteristic; the api package supplies one for HTTP clients.
//
// Reads and writes never fail for transport reasons: the appliance layer
// always answers, with stale or default values when it must. Errors from
// this package only describe bad host input (unknown or hidden
// characteristic, read-only target, wrong value type).
//
//	acc, err := accessory.NewAccessory(ctx, accessory.Options{
//	    Appliance: appliance,
//	    Store:     uiRepo,
//	})
//	v, err := acc.Write(ctx, "speed", 60)
package accessory
