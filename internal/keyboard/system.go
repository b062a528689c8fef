package keyboard

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// numpad keys are sent as raw scan codes; keybd_event only names them per OS.
var systemCodes = map[string]int{
	"a": keybd_event.VK_A, "b": keybd_event.VK_B, "c": keybd_event.VK_C, "d": keybd_event.VK_D,
	"e": keybd_event.VK_E, "f": keybd_event.VK_F, "g": keybd_event.VK_G, "h": keybd_event.VK_H,
	"i": keybd_event.VK_I, "j": keybd_event.VK_J, "k": keybd_event.VK_K, "l": keybd_event.VK_L,
	"m": keybd_event.VK_M, "n": keybd_event.VK_N, "o": keybd_event.VK_O, "p": keybd_event.VK_P,
	"q": keybd_event.VK_Q, "r": keybd_event.VK_R, "s": keybd_event.VK_S, "t": keybd_event.VK_T,
	"u": keybd_event.VK_U, "v": keybd_event.VK_V, "w": keybd_event.VK_W, "x": keybd_event.VK_X,
	"y": keybd_event.VK_Y, "z": keybd_event.VK_Z,
	"0": keybd_event.VK_0, "1": keybd_event.VK_1, "2": keybd_event.VK_2, "3": keybd_event.VK_3,
	"4": keybd_event.VK_4, "5": keybd_event.VK_5, "6": keybd_event.VK_6, "7": keybd_event.VK_7,
	"8": keybd_event.VK_8, "9": keybd_event.VK_9,
	"space": keybd_event.VK_SPACE,

	"multiply": 0x37,
	"numpad0":  0x52,
	"numpad1":  0x4F,
	"numpad2":  0x50,
	"numpad3":  0x51,
	"numpad4":  0x4B,
	"numpad5":  0x4C,
	"numpad6":  0x4D,
	"numpad7":  0x47,
	"numpad8":  0x48,
	"numpad9":  0x49,
	"subtract": 0x4A,
	"add":      0x4E,
}

// System sends strokes through the operating system's input queue.
type System struct {
	mu sync.Mutex
	kb keybd_event.KeyBonding
}

// NewSystem creates the OS keyboard. On Linux the virtual uinput device needs
// a moment to register before it receives events.
func NewSystem() (*System, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("keyboard: init system keyboard: %w", err)
	}
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}
	slog.Info("keyboard: system driver ready", "os", runtime.GOOS)
	return &System{kb: kb}, nil
}

func (s *System) set(shift, ctrl bool, keys ...int) {
	s.kb.Clear()
	s.kb.SetKeys(keys...)
	s.kb.HasSHIFT(shift)
	s.kb.HasCTRL(ctrl)
}

// Down presses the key with its modifiers, then lets the modifiers go.
func (s *System) Down(st Stroke) error {
	code, ok := systemCodes[st.Key]
	if !ok {
		return ErrUnknownKey{st.Key}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(st.Shift, st.Ctrl, code)
	if err := s.kb.Press(); err != nil {
		return fmt.Errorf("keyboard: press %s: %w", st, err)
	}
	if st.Shift || st.Ctrl {
		s.set(st.Shift, st.Ctrl)
		if err := s.kb.Release(); err != nil {
			return fmt.Errorf("keyboard: release modifiers of %s: %w", st, err)
		}
	}
	return nil
}

// Up releases the base key.
func (s *System) Up(st Stroke) error {
	code, ok := systemCodes[st.Key]
	if !ok {
		return ErrUnknownKey{st.Key}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(false, false, code)
	if err := s.kb.Release(); err != nil {
		return fmt.Errorf("keyboard: release %s: %w", st, err)
	}
	return nil
}

// ReleaseAll lifts shift, ctrl and alt.
func (s *System) ReleaseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(true, true)
	s.kb.HasALT(true)
	return s.kb.Release()
}

func (s *System) Close() error { return s.ReleaseAll() }
