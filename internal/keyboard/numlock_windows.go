//go:build windows

package keyboard

import (
	"github.com/micmonay/keybd_event"
	"golang.org/x/sys/windows"
)

const vkNumLock = 0x90

var getKeyState = windows.NewLazySystemDLL("user32.dll").NewProc("GetKeyState")

func init() {
	systemCodes["numlock"] = keybd_event.VK_NUMLOCK
}

func hostNumLock() (bool, error) {
	if err := getKeyState.Find(); err != nil {
		return false, err
	}
	r, _, _ := getKeyState.Call(vkNumLock)
	// The low bit is the toggle state.
	return r&1 == 1, nil
}
