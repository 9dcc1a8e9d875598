package printer

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"math/rand"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/john/chitu_uploader/sdcp"
)

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestUpload(t *testing.T) {
	tp := newTestPrinter(t)

	data := make([]byte, 10<<20)
	rand.New(rand.NewSource(7)).Read(data)
	path := tempFile(t, "benchy.ctb", data)
	sum := md5.Sum(data)
	want := hex.EncodeToString(sum[:])

	res, err := tp.client.Upload(context.Background(), tp.dev, path)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.LocalName != "benchy.ctb" || res.SizeBytes != int64(len(data)) || res.MD5 != want {
		t.Errorf("result = %+v", res)
	}
	if !hex32.MatchString(res.TransferID) {
		t.Errorf("TransferID = %q", res.TransferID)
	}

	ups := tp.sim.Uploads()
	if len(ups) != 1 {
		t.Fatalf("printer saw %d uploads", len(ups))
	}
	up := ups[0]
	if up.HeaderMD5 != want || up.BodyMD5 != want {
		t.Errorf("md5 header/body = %s/%s, want %s", up.HeaderMD5, up.BodyMD5, want)
	}
	if up.Check != "1" || up.Offset != "0" || up.TotalSize != "10485760" {
		t.Errorf("Check/Offset/TotalSize = %s/%s/%s", up.Check, up.Offset, up.TotalSize)
	}
	if up.UUID != res.TransferID {
		t.Errorf("Uuid = %s, want %s", up.UUID, res.TransferID)
	}
	if up.ContentLen <= int64(len(data)) {
		t.Errorf("Content-Length = %d, not set to the full body length", up.ContentLen)
	}

	stored, err := os.ReadFile(filepath.Join(tp.store.Dir(), "benchy.ctb"))
	if err != nil || !bytes.Equal(stored, data) {
		t.Errorf("stored file differs from source (err %v)", err)
	}
}

func TestUploadDigestDeterministic(t *testing.T) {
	tp := newTestPrinter(t)
	path := tempFile(t, "cube.ctb", []byte("hello"))

	var ids []string
	for i := 0; i < 2; i++ {
		res, err := tp.client.Upload(context.Background(), tp.dev, path)
		if err != nil {
			t.Fatal(err)
		}
		if res.MD5 != "5d41402abc4b2a76b9719d911017c592" {
			t.Errorf("MD5 = %s", res.MD5)
		}
		ids = append(ids, res.TransferID)
	}
	if ids[0] == ids[1] {
		t.Error("transfer ID reused across uploads")
	}
}

func TestUploadEmptyFile(t *testing.T) {
	tp := newTestPrinter(t)
	res, err := tp.client.Upload(context.Background(), tp.dev, tempFile(t, "empty.ctb", nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.SizeBytes != 0 || res.MD5 != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("result = %+v", res)
	}
}

func TestUploadRejected(t *testing.T) {
	tp := newTestPrinter(t)
	tp.sim.RejectUploads("000001", "disk full")

	_, err := tp.client.Upload(context.Background(), tp.dev, tempFile(t, "cube.ctb", []byte("cube")))
	var rej *sdcp.UploadRejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *sdcp.UploadRejectedError", err)
	}
	if rej.Code != "000001" || rej.Messages != "disk full" {
		t.Errorf("rejection = %+v", rej)
	}
}

func TestUploadMissingFile(t *testing.T) {
	tp := newTestPrinter(t)
	_, err := tp.client.Upload(context.Background(), tp.dev, filepath.Join(t.TempDir(), "missing.ctb"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not exist", err)
	}
	if len(tp.sim.Uploads()) != 0 {
		t.Error("request sent for a missing file")
	}
}

// captureTransport records the outgoing request instead of sending it.
type captureTransport struct {
	header http.Header
	length int64
	body   []byte
	reply  string
}

func (c *captureTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.header = r.Header.Clone()
	c.length = r.ContentLength
	c.body, _ = io.ReadAll(r.Body)
	r.Body.Close()
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(c.reply)),
		Request:    r,
	}, nil
}

func TestUploadWireFormat(t *testing.T) {
	ct := &captureTransport{reply: `{"code":"000000","messages":null}`}
	client := NewClient(WithHTTPClient(&http.Client{Transport: ct}))
	dev := sdcp.Device{IP: "192.0.2.10", MainboardID: "ABC123"}

	path := tempFile(t, `we"ird name.ctb`, []byte("hello"))
	res, err := client.Upload(context.Background(), dev, path)
	if err != nil {
		t.Fatal(err)
	}

	// Header names must go out exactly as spelled, not canonicalized.
	for name, want := range map[string]string{
		"S-File-MD5": "5d41402abc4b2a76b9719d911017c592",
		"Check":      "1",
		"Offset":     "0",
		"Uuid":       res.TransferID,
		"TotalSize":  "5",
	} {
		got, ok := ct.header[name]
		if !ok || len(got) != 1 || got[0] != want {
			t.Errorf("header %s = %v, want [%s]", name, got, want)
		}
	}

	if ct.length != int64(len(ct.body)) {
		t.Errorf("Content-Length %d, body is %d bytes", ct.length, len(ct.body))
	}

	mediaType, params, err := mime.ParseMediaType(ct.header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("Content-Type = %q (%v)", ct.header.Get("Content-Type"), err)
	}
	mr := multipart.NewReader(bytes.NewReader(ct.body), params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		t.Fatal(err)
	}
	if part.FormName() != "File" || part.FileName() != `we"ird name.ctb` {
		t.Errorf("part name/filename = %q/%q", part.FormName(), part.FileName())
	}
	if got := part.Header.Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("part Content-Type = %q", got)
	}
	content, _ := io.ReadAll(part)
	if string(content) != "hello" {
		t.Errorf("part content = %q", content)
	}
	if _, err := mr.NextPart(); err != io.EOF {
		t.Errorf("expected a single part, got err %v", err)
	}
}

func TestUploadReplyErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		reply   string
		want    error
		message string
	}{
		{"not json", http.StatusInternalServerError, "oops", sdcp.ErrProtocol, ""},
		{"no code", http.StatusOK, `{"messages":"x"}`, sdcp.ErrProtocol, ""},
		{"array messages", http.StatusOK, `{"code":"000005","messages":["a","b"]}`, nil, `["a","b"]`},
		{"no messages", http.StatusOK, `{"code":"000005"}`, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.reply)
			}))
			defer srv.Close()

			client := NewClient(WithHTTPPort(serverPort(t, srv.URL)))
			_, err := client.Upload(context.Background(), loopback, tempFile(t, "cube.ctb", []byte("cube")))
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("err = %v, want %v", err, tt.want)
				}
				return
			}
			var rej *sdcp.UploadRejectedError
			if !errors.As(err, &rej) {
				t.Fatalf("err = %v, want *sdcp.UploadRejectedError", err)
			}
			if rej.Code != "000005" || rej.Messages != tt.message {
				t.Errorf("rejection = %+v, want messages %q", rej, tt.message)
			}
		})
	}
}

func TestUploadProgress(t *testing.T) {
	tp := newTestPrinter(t)
	data := bytes.Repeat([]byte("x"), 100000)

	var seen atomic.Int64
	wrap := WithProgress(func(r io.Reader) io.Reader {
		return &countingReader{r: r, n: &seen}
	})
	if _, err := tp.client.Upload(context.Background(), tp.dev, tempFile(t, "x.ctb", data), wrap); err != nil {
		t.Fatal(err)
	}
	if seen.Load() != int64(len(data)) {
		t.Errorf("progress saw %d bytes, want %d", seen.Load(), len(data))
	}
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
