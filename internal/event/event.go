// Package event defines the structured event record shipped through every
// sink, and the free-form data payload that rides alongside it.
package event

import "encoding/json"

// Type enumerates the kinds of events the engine emits. Field names on the
// wire use the exact casing bindings already depend on — see Event.
type Type string

const (
	Start    Type = "start"
	StartOne Type = "startOne"
	Update   Type = "update"
	EndOne   Type = "endOne"
	End      Type = "end"
	Msg      Type = "msg"
	Err      Type = "err"
)

// Data is the free-form string-keyed payload attached to an Event. Values
// are anything JSON-serializable; which keys are populated depends on the
// Event's Type.
type Data map[string]any

// Event is the small record every sink delivers. JSON field names keep the
// original casing ("Type", "Name", "ShowName", "ID") because external
// language bindings depend on it verbatim.
type Event struct {
	Type     Type   `json:"Type"`
	Name     string `json:"Name"`
	ShowName string `json:"ShowName"`
	ID       string `json:"ID"`
}

// Envelope is what WebSocket/TCP sinks actually put on the wire: the event
// and its data side by side.
type Envelope struct {
	Event Event `json:"event"`
	Data  Data  `json:"data"`
}

// MarshalEnvelope renders an event/data pair as the wire JSON used by the
// WebSocket and TCP sinks.
func MarshalEnvelope(e Event, data Data) ([]byte, error) {
	if data == nil {
		data = Data{}
	}
	return json.Marshal(Envelope{Event: e, Data: data})
}

// WithDownloaded sets the legacy "Downloaded" compatibility alias alongside
// "downloaded_bytes" on an update payload; older clients read one key,
// newer ones the other, so both must appear.
func WithDownloaded(data Data, downloadedBytes int64) Data {
	if data == nil {
		data = Data{}
	}
	data["downloaded_bytes"] = downloadedBytes
	data["Downloaded"] = downloadedBytes
	return data
}

// TaskData builds the data payload shared by startOne/endOne events:
// URL, SavePath, ShowName, Index (1-based), Total.
func TaskData(url, savePath, showName string, index1Based, total int) Data {
	return Data{
		"URL":      url,
		"SavePath": savePath,
		"ShowName": showName,
		"Index":    index1Based,
		"Total":    total,
	}
}

// ErrorData builds the data payload for an err event.
func ErrorData(err error) Data {
	return Data{"Error": err.Error()}
}

// MsgData builds the data payload for a msg event.
func MsgData(text string) Data {
	return Data{"Text": text}
}
