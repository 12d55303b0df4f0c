// Package input turns raw digital input levels into typed input events.
//
// A Source (MCP23017 expanders over i2c-dev, or GPIO character-device
// lines) is sampled by Poll; a Classifier debounces each pin and
// recognises the gesture for the pin's InputType:
//
//	switch, contact    level changes (low / high)
//	toggle             every level change
//	press              every press
//	button             1-5 presses, or hold
//	rotary             quadrature pair, up / down
//	security           alarm loop + tamper loop pair
//
// Events carry the 1-based slot number, which is also the slot of the
// state synchronisation engine.
package input
