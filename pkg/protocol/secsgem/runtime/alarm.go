package runtime

// AlarmItem holds at most one populated payload.
type AlarmItem struct {
	Binary []byte
	U4     []uint32
	ASCII  *string
}

// AlarmReport is the body of an S5F1 alarm report.
type AlarmReport struct {
	Items []AlarmItem
}

// details scans every item and keeps the last seen value of each payload kind.
// Within one item the first populated kind wins.
func (r *AlarmReport) details() (alcd byte, alid uint32, altx string) {
	for _, item := range r.Items {
		if len(item.Binary) > 0 {
			alcd = item.Binary[0]
			continue
		}
		if len(item.U4) > 0 {
			alid = item.U4[0]
			continue
		}
		if item.ASCII != nil {
			altx = *item.ASCII
			continue
		}
	}
	return
}

// ALCD is the alarm code byte.
func (r *AlarmReport) ALCD() byte {
	alcd, _, _ := r.details()
	return alcd
}

// ALID is the alarm id.
func (r *AlarmReport) ALID() uint32 {
	_, alid, _ := r.details()
	return alid
}

// ALTX is the alarm text.
func (r *AlarmReport) ALTX() string {
	_, _, altx := r.details()
	return altx
}

// Set reports whether bit 8 of ALCD flags the alarm as set rather than cleared.
func (r *AlarmReport) Set() bool {
	return r.ALCD()&0x80 != 0
}
