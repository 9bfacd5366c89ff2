package protocol

import (
	"fmt"
	"time"
)

const (
	cmdStartComm   = 0x72
	cmdInitRequest = 0x5F
	cmdSetTime     = 0x30
	cmdAction      = 0x40
	cmdRead        = 0x50
)

// StartCommunication opens a software session.
func StartCommunication() []byte {
	return Pad(cmdStartComm)
}

// StatusRequest polls status sub-sequence seq (0..6).
func StatusRequest(seq byte) []byte {
	return Pad(cmdRead, 0x00, StatusRAMRead, seq)
}

// InitRequest asks the panel for the data echoed by InitCommunication.
func InitRequest() []byte {
	return Pad(cmdInitRequest, 0x20)
}

// InitCommunication builds the initialize-communication payload from the
// reply to InitRequest.
func InitCommunication(reply []byte) ([]byte, error) {
	if len(reply) < 23 {
		return nil, fmt.Errorf("init communication: reply too short (%d bytes)", len(reply))
	}
	p := make([]byte, 0, PayloadSize)
	p = append(p, reply[0:10]...)
	p = append(p, reply[8:10]...)
	p = append(p, 0x19, 0x00, 0x00)
	p = append(p, reply[15:23]...)
	p = append(p, make([]byte, 10)...)
	p = append(p, 0x02, 0x00, 0x00)
	return p, nil
}

// KeepAliveFinal closes a keep-alive burst.
func KeepAliveFinal() []byte {
	return Pad(cmdRead, 0x00, StatusFinalMarker, StatusFinalSub)
}

// ZeroRead is the bare read sent during login.
func ZeroRead() []byte {
	return Pad(cmdRead)
}

// LoginTail is the last read of the login sequence.
func LoginTail() []byte {
	return Pad(cmdRead, 0x00, 0x0E, 0x52)
}

// SetTime sets the panel clock to t.
func SetTime(t time.Time) []byte {
	return Pad(cmdSetTime, 0x00, 0x00, 0x00,
		byte(t.Year()/100),
		byte(t.Year()%100),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	)
}

// Bypass toggles the bypass of a 1-based zone.
func Bypass(zone int) []byte {
	return Pad(cmdAction, 0x00, ActionBypass, byte(zone-1), 0x04)
}

// ReadRegister reads 32 bytes of EEPROM at addr.
func ReadRegister(addr uint16) []byte {
	return Pad(cmdRead, 0x00, byte(addr>>8), byte(addr))
}
