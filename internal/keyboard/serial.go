package keyboard

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// Serial drives a microcontroller that enumerates as a USB keyboard and
// replays the frames it receives. Each Down and Up is one Frame.
type Serial struct {
	mu   sync.Mutex
	port io.WriteCloser
	seq  byte
	log  *slog.Logger
}

// OpenSerial opens the named serial device at the given baud rate. An empty
// name picks the only port present.
func OpenSerial(name string, baud int) (*Serial, error) {
	if name == "" {
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("serial: list ports: %w", err)
		}
		if len(ports) != 1 {
			return nil, fmt.Errorf("serial: %d ports found, pick one with -serial", len(ports))
		}
		name = ports[0]
	}
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s at %d baud: %w", name, baud, err)
	}
	slog.Info("serial: port opened", "device", name, "baud", baud)
	return NewSerial(p), nil
}

// NewSerial wraps an already open port.
func NewSerial(port io.WriteCloser) *Serial {
	return &Serial{port: port, log: slog.Default().With("component", "serial")}
}

// sendFrame encodes and writes a Frame to the serial port.
func (s *Serial) sendFrame(cmd byte, usage byte, mods byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := Frame{Cmd: cmd, Usage: usage, Mods: mods, Seq: s.seq}
	s.seq++
	n, err := s.port.Write(f.Encode())
	if err != nil {
		return fmt.Errorf("serial: write frame %d: %w", f.Seq, err)
	}
	s.log.Debug("serial: frame sent", "bytes", n, "seq", f.Seq, "cmd", cmd, "usage", usage, "mods", mods)
	return nil
}

func (s *Serial) Down(st Stroke) error {
	u, ok := hidUsage[st.Key]
	if !ok {
		return ErrUnknownKey{st.Key}
	}
	return s.sendFrame(CmdKeyDown, u, strokeMods(st))
}

func (s *Serial) Up(st Stroke) error {
	u, ok := hidUsage[st.Key]
	if !ok {
		return ErrUnknownKey{st.Key}
	}
	return s.sendFrame(CmdKeyUp, u, 0)
}

func (s *Serial) ReleaseAll() error { return s.sendFrame(CmdReleaseAll, 0, 0) }

// Close releases everything and closes the underlying serial port.
func (s *Serial) Close() error {
	s.log.Info("serial: closing port")
	return errors.Join(s.ReleaseAll(), s.port.Close())
}
