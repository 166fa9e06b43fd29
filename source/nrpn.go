package source

// NRPNAccumulator assembles the four-message NRPN sequence (CC 99, CC 98,
// CC 6, CC 38) into a single 14-bit value. One accumulator instance is needed
// per MIDI device+channel; the real-time processor does not hold any. Its
// state is plain data, so Feed does not allocate per event.
type NRPNAccumulator struct {
	haveMSBParam bool
	haveLSBParam bool
	haveMSBValue bool
	paramMSB     uint8
	paramLSB     uint8
	valueMSB     uint8
}

// Feed processes one incoming CC and reports whether it was consumed as part
// of the NRPN sequence, and if the sequence just completed, the assembled
// parameter number and 14-bit value.
func (a *NRPNAccumulator) Feed(controller, v uint8) (consumed bool, complete bool, param uint16, val16 uint16) {
	switch controller {
	case 99: // NRPN param MSB
		a.paramMSB = v
		a.haveMSBParam = true
		a.haveLSBParam = false
		a.haveMSBValue = false
		return true, false, 0, 0
	case 98: // NRPN param LSB
		a.paramLSB = v
		a.haveLSBParam = true
		return true, false, 0, 0
	case 6: // data entry MSB
		a.valueMSB = v
		a.haveMSBValue = true
		return true, false, 0, 0
	case 38: // data entry LSB
		if !a.haveMSBParam || !a.haveLSBParam || !a.haveMSBValue {
			return true, false, 0, 0
		}
		param = uint16(a.paramMSB)<<7 | uint16(a.paramLSB)
		val16 = uint16(a.valueMSB)<<7 | uint16(v)
		return true, true, param, val16
	default:
		return false, false, 0, 0
	}
}

// Reset clears accumulated state, e.g. on device reconnect.
func (a *NRPNAccumulator) Reset() {
	*a = NRPNAccumulator{}
}
