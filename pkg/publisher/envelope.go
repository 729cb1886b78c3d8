package publisher

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"strings"
	"time"

	"mesbridge/pkg/runtime"
)

const mesUserID = "SYSTEM"

type transDevice struct {
	Name        string `json:"name"`
	Floor       string `json:"floor"`
	Manufacture string `json:"manufacture"`
}

type transValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type transData struct {
	Ts     int64        `json:"ts"`
	Device transDevice  `json:"device"`
	Values []transValue `json:"values"`
}

// splitDeviceName splits "name.floor"; the floor is empty when there is no dot.
func splitDeviceName(deviceName string) (name, floor string) {
	parts := strings.Split(deviceName, ".")
	if len(parts) > 1 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

// TransData renders the JSON payload the MES expects for one snapshot.
func TransData(s *runtime.Snapshot, now time.Time) ([]byte, error) {
	name, floor := splitDeviceName(s.DeviceInfo.DeviceName)
	td := transData{
		Ts: now.Unix(),
		Device: transDevice{
			Name:        name,
			Floor:       floor,
			Manufacture: s.DeviceInfo.Manufacture.String(),
		},
		Values: make([]transValue, 0, len(s.Tags)),
	}
	for _, tag := range s.Tags {
		td.Values = append(td.Values, transValue{Name: tag.Name, Value: tag.Value})
	}
	return json.Marshal(td)
}

// BuildEnvelope wraps the transData of s in a SOAP request for action.
func BuildEnvelope(action string, s *runtime.Snapshot, now time.Time) (string, error) {
	data, err := TransData(s, now)
	if err != nil {
		return "", err
	}

	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` + "\n")
	b.WriteString("<soap:Body>\n")
	b.WriteString("<" + action + ">\n")
	b.WriteString("<facilityId>")
	_ = xml.EscapeText(&b, []byte("M"+s.DeviceInfo.Workshop))
	b.WriteString("</facilityId>\n")
	b.WriteString("<userId>" + mesUserID + "</userId>\n")
	b.WriteString("<transData>")
	_ = xml.EscapeText(&b, data)
	b.WriteString("</transData>\n")
	b.WriteString("</" + action + ">\n")
	b.WriteString("</soap:Body>\n")
	b.WriteString("</soap:Envelope>")
	return b.String(), nil
}
