// Package hci is the typed boundary between the host and an HCI
// controller. Commands and events are Go structs; serialization to the
// wire format is a transport concern and lives elsewhere.
package hci

import "fmt"

// OpCode is an HCI command opcode (OGF<<10 | OCF).
type OpCode uint16

// OGF returns the opcode group field.
func (o OpCode) OGF() uint8 { return uint8(o >> 10) }

// OCF returns the opcode command field.
func (o OpCode) OCF() uint16 { return uint16(o) & 0x03FF }

// EventCode is an HCI event code.
type EventCode uint8

// Command is a typed HCI command.
type Command interface {
	OpCode() OpCode
	String() string
}

// Event is a typed HCI event.
type Event interface {
	Code() EventCode
	String() string
}

// Sender hands commands to the controller. Send returns once the command
// is queued; complete fires when the controller reports Command Status or
// Command Complete for it, with nil for success or a StatusError
// otherwise. complete may be invoked from any goroutine and may be nil
// when the caller does not care about the outcome.
type Sender interface {
	Send(c Command, complete func(err error)) error
}

// StatusError is a non-zero HCI status code. [Vol 1, Part F, 1.3]
type StatusError byte

func (e StatusError) Error() string {
	if s, ok := statusName[byte(e)]; ok {
		return s
	}
	return fmt.Sprintf("unknown status (0x%02X)", byte(e))
}

// Status returns the raw code.
func (e StatusError) Status() byte { return byte(e) }

// StatusToError maps an HCI status byte to an error, nil for success.
func StatusToError(status byte) error {
	if status == StatusSuccess {
		return nil
	}
	return StatusError(status)
}

var statusName = map[byte]string{
	0x01: "unknown hci command",
	0x02: "unknown connection identifier",
	0x03: "hardware failure",
	0x04: "page timeout",
	0x05: "authentication failure",
	0x06: "pin or key missing",
	0x07: "memory capacity exceeded",
	0x08: "connection timeout",
	0x09: "connection limit exceeded",
	0x0A: "synchronous connection limit exceeded",
	0x0B: "connection already exists",
	0x0C: "command disallowed",
	0x0D: "connection rejected due to limited resources",
	0x0E: "connection rejected due to security reasons",
	0x0F: "connection rejected due to unacceptable bd_addr",
	0x10: "connection accept timeout exceeded",
	0x11: "unsupported feature or parameter value",
	0x12: "invalid hci command parameters",
	0x13: "remote user terminated connection",
	0x14: "remote device terminated connection due to low resources",
	0x15: "remote device terminated connection due to power off",
	0x16: "connection terminated by local host",
	0x17: "repeated attempts",
	0x18: "pairing not allowed",
	0x1F: "unspecified error",
	0x22: "lmp response timeout",
	0x23: "lmp error transaction collision",
	0x25: "encryption mode not acceptable",
	0x26: "link key cannot be changed",
	0x28: "instant passed",
	0x29: "pairing with unit key not supported",
	0x2F: "insufficient security",
	0x37: "secure simple pairing not supported by host",
	0x3A: "controller busy",
	0x3D: "connection failed to be established",
}
