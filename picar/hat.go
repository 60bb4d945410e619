// Package picar talks to the robot hat over a serial line: steering servo,
// drive motors, and the ultrasonic range sensor. The wire protocol is a
// tiny line protocol ("S <deg>", "M <speed>", "H", "D?"), one command per
// line, acknowledged distances as "D <cm>".
package picar

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// Actuator is the narrow motion interface the controller drives. The
// electrical details behind it are out of the core's scope.
type Actuator interface {
	SetSteerDeg(deg float64) error
	SetSpeed(speed int) error
	Halt() error
}

// HatLink is a serial connection to the robot hat. All writes and the
// distance query/response exchange are serialized by one mutex; the hat
// processes one command at a time.
type HatLink struct {
	port serial.Port
	rd   *bufio.Reader
	mu   sync.Mutex
}

// Open opens the hat serial port.
func Open(portName string) (*HatLink, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("opening hat port %s: %v", portName, err)
	}
	return &HatLink{port: port, rd: bufio.NewReader(port)}, nil
}

// newHatLinkForTest wires a HatLink over an arbitrary port implementation.
func newHatLinkForTest(port serial.Port) *HatLink {
	return &HatLink{port: port, rd: bufio.NewReader(port)}
}

func (h *HatLink) writeLine(line string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.port.Write([]byte(line + "\n"))
	if err != nil {
		return fmt.Errorf("writing to hat: %v", err)
	}
	return nil
}

// SetSteerDeg commands the steering servo angle in degrees (positive left).
func (h *HatLink) SetSteerDeg(deg float64) error {
	return h.writeLine(fmt.Sprintf("S %.1f", deg))
}

// SetSpeed commands the signed drive magnitude (-100..100).
func (h *HatLink) SetSpeed(speed int) error {
	return h.writeLine(fmt.Sprintf("M %d", speed))
}

// Halt stops the motors and centers the steering.
func (h *HatLink) Halt() error {
	return h.writeLine("H")
}

// Close closes the serial port.
func (h *HatLink) Close() error {
	return h.port.Close()
}

// queryDistanceCm triggers one ultrasonic ping and parses the "D <cm>"
// response. Callers go through RangeSensor, which rate-limits this.
func (h *HatLink) queryDistanceCm() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.port.Write([]byte("D?\n")); err != nil {
		return 0, fmt.Errorf("writing distance query: %v", err)
	}
	line, err := h.rd.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("reading distance response: %v", err)
	}
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) != 2 || fields[0] != "D" {
		return 0, fmt.Errorf("unexpected distance response %q", strings.TrimSpace(line))
	}
	cm, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable distance %q", fields[1])
	}
	return cm, nil
}

// NopActuator discards every command. Used for bench runs without the car
// and in tests.
type NopActuator struct {
	mu        sync.Mutex
	lastSteer float64
	lastSpeed int
	halted    bool
}

// SetSteerDeg records the steering command.
func (n *NopActuator) SetSteerDeg(deg float64) error {
	n.mu.Lock()
	n.lastSteer = deg
	n.halted = false
	n.mu.Unlock()
	return nil
}

// SetSpeed records the speed command.
func (n *NopActuator) SetSpeed(speed int) error {
	n.mu.Lock()
	n.lastSpeed = speed
	n.halted = false
	n.mu.Unlock()
	return nil
}

// Halt records the halt.
func (n *NopActuator) Halt() error {
	n.mu.Lock()
	n.lastSteer = 0
	n.lastSpeed = 0
	n.halted = true
	n.mu.Unlock()
	return nil
}

// Last returns the most recent command state.
func (n *NopActuator) Last() (steerDeg float64, speed int, halted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastSteer, n.lastSpeed, n.halted
}
