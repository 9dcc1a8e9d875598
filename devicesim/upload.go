package devicesim

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"go.uber.org/zap"

	"github.com/john/chitu_uploader/sdcp"
)

const (
	codeBadRequest  = "000001"
	codeMD5Mismatch = "000002"
	codeSizeInvalid = "000003"
	codeWriteFailed = "000004"
)

type uploadReply struct {
	Code     string      `json:"code"`
	Messages interface{} `json:"messages"`
	Data     interface{} `json:"data"`
	Success  bool        `json:"success"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Simulator) reject(w http.ResponseWriter, code, messages string) {
	s.log.Warn("Upload rejected", zap.String("code", code), zap.String("messages", messages))
	writeJSON(w, uploadReply{Code: code, Messages: messages})
}

// handleUpload accepts a single-shot multipart upload, verifies it against
// the S-File-MD5 and TotalSize headers, and stores it under its basename.
func (s *Simulator) handleUpload(w http.ResponseWriter, r *http.Request) {
	rec := Upload{
		HeaderMD5:  r.Header.Get("S-File-MD5"),
		TotalSize:  r.Header.Get("TotalSize"),
		Check:      r.Header.Get("Check"),
		Offset:     r.Header.Get("Offset"),
		UUID:       r.Header.Get("Uuid"),
		ContentLen: r.ContentLength,
	}

	s.mu.Lock()
	code, messages := s.rejectCode, s.rejectMessages
	s.mu.Unlock()
	if code != "" {
		io.Copy(io.Discard, r.Body)
		s.reject(w, code, messages)
		return
	}

	if rec.Offset != "0" {
		s.reject(w, codeBadRequest, "only offset 0 is supported")
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		s.reject(w, codeBadRequest, "expected multipart body")
		return
	}

	var stored bool
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.reject(w, codeBadRequest, err.Error())
			return
		}
		if part.FormName() != "File" || part.FileName() == "" {
			part.Close()
			continue
		}

		rec.Filename = path.Base(part.FileName())
		n, sum, err := s.store.Save(rec.Filename, part)
		part.Close()
		if err != nil {
			s.reject(w, codeWriteFailed, err.Error())
			return
		}
		rec.Size, rec.BodyMD5 = n, sum
		stored = true
		break
	}
	if !stored {
		s.reject(w, codeBadRequest, "File field not found")
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, rec)
	s.mu.Unlock()

	if total, err := strconv.ParseInt(rec.TotalSize, 10, 64); err != nil || total != rec.Size {
		s.store.Delete(rec.Filename)
		s.reject(w, codeSizeInvalid, "TotalSize does not match received bytes")
		return
	}
	if rec.Check == "1" && rec.HeaderMD5 != rec.BodyMD5 {
		s.store.Delete(rec.Filename)
		s.reject(w, codeMD5Mismatch, "MD5 check failed")
		return
	}

	s.log.Info("Upload stored", zap.String("file", rec.Filename), zap.Int64("size", rec.Size), zap.String("md5", rec.BodyMD5))
	writeJSON(w, uploadReply{Code: sdcp.UploadOK, Messages: nil, Success: true})
}
