package runtime

import (
	"encoding/json"
	"fmt"
)

// ETagMaxInitialValue just a value, meaningless
const ETagMaxInitialValue int64 = 3294967296

type Protocol string

const (
	ProtocolOpcUa   Protocol = "opcUa"
	ProtocolSecsGem Protocol = "secsGem"
)

func (p Protocol) Valid() bool {
	return p == ProtocolOpcUa || p == ProtocolSecsGem
}

type Manufacture int8

const (
	// opcUa
	JC Manufacture = iota
	SC
	BS
	YH
	SK

	// secsGem
	BeiFangHuaChuang
	JieJiaWeiChuang
	HongTaiYang
)

var ManufactureToString = map[Manufacture]string{
	JC:               "JC",
	SC:               "SC",
	BS:               "BS",
	YH:               "YH",
	SK:               "SK",
	BeiFangHuaChuang: "BeiFangHuaChuang",
	JieJiaWeiChuang:  "JieJiaWeiChuang",
	HongTaiYang:      "HongTaiYang",
}

var StringToManufacture = map[string]Manufacture{
	"JC":               JC,
	"SC":               SC,
	"BS":               BS,
	"YH":               YH,
	"SK":               SK,
	"BeiFangHuaChuang": BeiFangHuaChuang,
	"JieJiaWeiChuang":  JieJiaWeiChuang,
	"HongTaiYang":      HongTaiYang,
}

func (m Manufacture) String() string {
	if s, ok := ManufactureToString[m]; ok {
		return s
	}
	return fmt.Sprintf("Manufacture(%d)", m)
}

// Protocol reports which wire protocol a manufacturer's equipment speaks.
func (m Manufacture) Protocol() Protocol {
	if m >= BeiFangHuaChuang {
		return ProtocolSecsGem
	}
	return ProtocolOpcUa
}

func (m Manufacture) MarshalJSON() ([]byte, error) {
	if s, ok := ManufactureToString[m]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown manufacture %d", m)
}

// UnmarshalJSON accepts the name or the ordinal used by older configuration files.
func (m *Manufacture) UnmarshalJSON(bytes []byte) error {
	var n int8
	if err := json.Unmarshal(bytes, &n); err == nil {
		if _, ok := ManufactureToString[Manufacture(n)]; !ok {
			return fmt.Errorf("unknown manufacture %d", n)
		}
		*m = Manufacture(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, ok := StringToManufacture[s]
	if !ok {
		return fmt.Errorf("unknown manufacture %s", s)
	}
	*m = v
	return nil
}

type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	NotSelected
	Selected
	CommunicationEstablished
)

var connectionStateToString = map[ConnectionState]string{
	Disconnected:             "Disconnected",
	Connecting:               "Connecting",
	Connected:                "Connected",
	NotSelected:              "NotSelected",
	Selected:                 "Selected",
	CommunicationEstablished: "CommunicationEstablished",
}

func (s ConnectionState) String() string {
	if str, ok := connectionStateToString[s]; ok {
		return str
	}
	return "Unknown"
}

func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
