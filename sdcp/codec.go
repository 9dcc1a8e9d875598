// Package sdcp implements the wire side of the ChituBox SDCP protocol spoken
// by Chitu-based resin printer mainboards: the UDP discovery datagram and the
// JSON envelopes exchanged over the mainboard's WebSocket.
package sdcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DiscoveryPort = 3000
	HTTPPort      = 3030

	// LocalStorage is the mainboard's on-board storage root.
	LocalStorage = "/local/"
)

// Command codes understood by the mainboard.
const (
	CmdStartPrint = 128
	CmdListFiles  = 258
)

// FromLocalPC marks a request as coming from local controlling software.
const FromLocalPC = 0

// DiscoveryRequest is the datagram broadcast to DiscoveryPort.
var DiscoveryRequest = []byte("M99999")

// Device identifies a discovered mainboard.
type Device struct {
	IP              string `json:"MainboardIP"`
	MainboardID     string `json:"MainboardID"`
	Name            string `json:"Name,omitempty"`
	MachineName     string `json:"MachineName,omitempty"`
	FirmwareVersion string `json:"FirmwareVersion,omitempty"`
}

// String returns a human-readable representation of the device.
func (d Device) String() string {
	if d.MachineName != "" {
		return fmt.Sprintf("%s@%s - %s", d.MainboardID, d.IP, d.MachineName)
	}
	return fmt.Sprintf("%s@%s", d.MainboardID, d.IP)
}

type discoveryReply struct {
	ID   string  `json:"Id,omitempty"`
	Data *Device `json:"Data"`
}

// EncodeDiscoveryReply serializes the reply a mainboard sends to DiscoveryRequest.
func EncodeDiscoveryReply(d Device) ([]byte, error) {
	return json.Marshal(discoveryReply{ID: NewToken(), Data: &d})
}

// DecodeDiscoveryReply parses a discovery reply.
// Format: {"Data": {"MainboardIP": "192.168.1.50", "MainboardID": "ABC123", ...}}
func DecodeDiscoveryReply(b []byte) (Device, error) {
	var r discoveryReply
	if err := json.Unmarshal(b, &r); err != nil {
		return Device{}, fmt.Errorf("%w: %v", ErrDiscoveryProtocol, err)
	}
	if r.Data == nil {
		return Device{}, fmt.Errorf("%w: Data not found", ErrDiscoveryProtocol)
	}
	if r.Data.IP == "" {
		return Device{}, fmt.Errorf("%w: MainboardIP not found", ErrDiscoveryProtocol)
	}
	if r.Data.MainboardID == "" {
		return Device{}, fmt.Errorf("%w: MainboardID not found", ErrDiscoveryProtocol)
	}
	return *r.Data, nil
}

// Request is the command envelope sent over the WebSocket.
type Request struct {
	ID    string      `json:"Id"`
	Data  RequestData `json:"Data"`
	Topic string      `json:"Topic"`
}

type RequestData struct {
	Cmd         int             `json:"Cmd"`
	Data        json.RawMessage `json:"Data"`
	RequestID   string          `json:"RequestID"`
	MainboardID string          `json:"MainboardID"`
	TimeStamp   int64           `json:"TimeStamp"`
	From        int             `json:"From"`
}

// Response is the envelope the mainboard answers with.
type Response struct {
	ID    string       `json:"Id"`
	Data  ResponseData `json:"Data"`
	Topic string       `json:"Topic,omitempty"`
}

type ResponseData struct {
	Cmd         int             `json:"Cmd"`
	Data        json.RawMessage `json:"Data"`
	RequestID   string          `json:"RequestID,omitempty"`
	MainboardID string          `json:"MainboardID,omitempty"`
	TimeStamp   int64           `json:"TimeStamp,omitempty"`
}

// ListFilesPayload is the Data of a CmdListFiles request.
type ListFilesPayload struct {
	URL string `json:"Url"`
}

// StartPrintPayload is the Data of a CmdStartPrint request.
type StartPrintPayload struct {
	Filename   string `json:"Filename"`
	StartLayer int    `json:"StartLayer"`
}

// FileEntry is one element of a FileList reply.
type FileEntry struct {
	Name string `json:"name"`
	// Type is 0 for a folder and 1 for a file.
	Type      int   `json:"type"`
	UsedSize  int64 `json:"usedSize,omitempty"`
	TotalSize int64 `json:"totalSize,omitempty"`
}

// RequestTopic returns the topic a request for the given mainboard is published on.
func RequestTopic(mainboardID string) string {
	return "sdcp/request/" + mainboardID
}

// ResponseTopic returns the topic a mainboard answers on.
func ResponseTopic(mainboardID string) string {
	return "sdcp/response/" + mainboardID
}

// NewToken returns a random 32 hex character token.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewRequest builds a command envelope addressed to d.
func NewRequest(d Device, cmd int, payload any) (Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("encoding cmd %d payload: %w", cmd, err)
	}
	return Request{
		ID: NewToken(),
		Data: RequestData{
			Cmd:         cmd,
			Data:        data,
			RequestID:   d.MainboardID,
			MainboardID: d.MainboardID,
			TimeStamp:   time.Now().Unix(),
			From:        FromLocalPC,
		},
		Topic: RequestTopic(d.MainboardID),
	}, nil
}

// EncodeRequest serializes a request envelope.
func EncodeRequest(r Request) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRequest parses a request envelope.
func DecodeRequest(b []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return r, nil
}

// DecodeResponse parses a response envelope.
func DecodeResponse(b []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return r, nil
}

// DecodeFileList extracts Data.Data.FileList from a CmdListFiles reply.
func DecodeFileList(r Response) ([]FileEntry, error) {
	var body struct {
		FileList *[]FileEntry `json:"FileList"`
	}
	if err := decodeInner(r, &body); err != nil {
		return nil, err
	}
	if body.FileList == nil {
		return nil, fmt.Errorf("%w: FileList not found", ErrProtocol)
	}
	return *body.FileList, nil
}

// DecodeAck extracts Data.Data.Ack from a reply.
func DecodeAck(r Response) (AckCode, error) {
	var body struct {
		Ack *int `json:"Ack"`
	}
	if err := decodeInner(r, &body); err != nil {
		return 0, err
	}
	if body.Ack == nil {
		return 0, fmt.Errorf("%w: Ack not found", ErrProtocol)
	}
	return AckCode(*body.Ack), nil
}

func decodeInner(r Response, v any) error {
	if len(r.Data.Data) == 0 || string(r.Data.Data) == "null" {
		return fmt.Errorf("%w: Data.Data not found", ErrProtocol)
	}
	if err := json.Unmarshal(r.Data.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return nil
}
