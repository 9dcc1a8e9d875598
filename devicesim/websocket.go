package devicesim

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/john/chitu_uploader/sdcp"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and answers SDCP requests, one
// reply frame per request frame.
func (s *Simulator) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	s.log.Debug("WebSocket client connected", zap.String("remote", r.RemoteAddr))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		req, err := sdcp.DecodeRequest(message)
		if err != nil {
			s.log.Warn("Undecodable SDCP request", zap.Error(err))
			continue
		}

		if err := conn.WriteJSON(s.handleRequest(req)); err != nil {
			s.log.Warn("WebSocket send error", zap.Error(err))
			return
		}
	}
}

func (s *Simulator) handleRequest(req sdcp.Request) sdcp.Response {
	s.log.Debug("SDCP request", zap.String("id", req.ID), zap.Int("cmd", req.Data.Cmd))

	var data interface{}
	switch req.Data.Cmd {
	case sdcp.CmdListFiles:
		data = s.listFiles(req.Data.Data)
	case sdcp.CmdStartPrint:
		data = s.startPrint(req.Data.Data)
	default:
		data = map[string]int{"Ack": 0}
	}

	raw, _ := json.Marshal(data)
	return sdcp.Response{
		ID: sdcp.NewToken(),
		Data: sdcp.ResponseData{
			Cmd:         req.Data.Cmd,
			Data:        raw,
			RequestID:   req.ID,
			MainboardID: s.device.MainboardID,
			TimeStamp:   time.Now().Unix(),
		},
		Topic: sdcp.ResponseTopic(s.device.MainboardID),
	}
}

type fileListReply struct {
	Ack      int              `json:"Ack"`
	FileList []sdcp.FileEntry `json:"FileList"`
}

func (s *Simulator) listFiles(raw json.RawMessage) fileListReply {
	var p sdcp.ListFilesPayload
	json.Unmarshal(raw, &p)

	reply := fileListReply{FileList: []sdcp.FileEntry{}}
	if p.URL != sdcp.LocalStorage && p.URL != strings.TrimSuffix(sdcp.LocalStorage, "/") {
		reply.Ack = 1
		return reply
	}

	entries, err := s.store.List()
	if err != nil {
		s.log.Warn("Listing store failed", zap.Error(err))
		reply.Ack = 1
		return reply
	}
	total, free := s.store.Usage()
	for _, e := range entries {
		reply.FileList = append(reply.FileList, sdcp.FileEntry{
			Name:      sdcp.LocalStorage + e.Name,
			Type:      1,
			UsedSize:  int64(total - free),
			TotalSize: int64(total),
		})
	}
	return reply
}

func (s *Simulator) startPrint(raw json.RawMessage) map[string]int {
	var p sdcp.StartPrintPayload
	json.Unmarshal(raw, &p)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.omitAck {
		return map[string]int{}
	}
	if s.ack != 0 {
		return map[string]int{"Ack": s.ack}
	}

	name := strings.TrimPrefix(p.Filename, sdcp.LocalStorage)
	if _, err := s.store.Stat(name); err != nil {
		return map[string]int{"Ack": int(sdcp.AckFileNotFound)}
	}
	s.printing = name
	s.log.Info("Print started", zap.String("file", name), zap.Int("start_layer", p.StartLayer))
	return map[string]int{"Ack": int(sdcp.AckSuccess)}
}
