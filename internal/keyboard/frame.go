package keyboard

const (
	SOF0 = 0xAA
	SOF1 = 0x55

	CmdKeyDown    = 0x20
	CmdKeyUp      = 0x21
	CmdReleaseAll = 0x22

	ModCtrl  = 0x01 // left ctrl, HID modifier bit 0
	ModShift = 0x02 // left shift, HID modifier bit 1
)

// Frame is one command for the HID bridge firmware.
type Frame struct {
	Cmd   byte
	Usage byte // HID usage ID of the key, 0 for CmdReleaseAll
	Mods  byte
	Seq   byte
}

// Encode builds the on-wire representation:
//
//	[SOF0][SOF1][LEN][CMD][usage][mods][seq][CKS]
//
// LEN counts CMD plus the payload; CKS is the XOR of LEN, CMD and the payload.
func (f *Frame) Encode() []byte {
	payload := []byte{f.Usage, f.Mods, f.Seq}

	length := byte(len(payload) + 1) // +1 for CMD byte
	cks := length ^ f.Cmd
	for _, b := range payload {
		cks ^= b
	}

	out := []byte{SOF0, SOF1, length, f.Cmd}
	out = append(out, payload...)
	out = append(out, cks)
	return out
}

func strokeMods(s Stroke) byte {
	var m byte
	if s.Ctrl {
		m |= ModCtrl
	}
	if s.Shift {
		m |= ModShift
	}
	return m
}
