// Package control sends on/off commands to control slots.
//
// A dispatch validates the command and the slot, publishes
// {"slot":n,"command":c} on the control topic and then records the command
// as a reading of the slot, so the slot's history shows what was sent.
//
// Publishing and recording are not atomic. If the process stops between the
// two, the device has received a command that the history does not show.
package control
