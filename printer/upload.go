package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/john/chitu_uploader/files"
	"github.com/john/chitu_uploader/sdcp"
)

const (
	uploadPath      = "/uploadFile/upload"
	uploadField     = "File"
	maxReplySize    = 1 << 20
	octetStreamType = "application/octet-stream"
)

// UploadResult describes a file the mainboard accepted.
type UploadResult struct {
	LocalName  string
	MD5        string
	SizeBytes  int64
	TransferID string
}

type uploadOptions struct {
	progress func(io.Reader) io.Reader
}

// UploadOption configures a single upload.
type UploadOption func(*uploadOptions)

// WithProgress wraps the file stream, e.g. with a progress bar proxy reader.
func WithProgress(wrap func(io.Reader) io.Reader) UploadOption {
	return func(o *uploadOptions) { o.progress = wrap }
}

type uploadReply struct {
	Code     *string         `json:"code"`
	Messages json.RawMessage `json:"messages"`
}

// Upload sends the file at path to the mainboard in a single multipart POST
// with offset 0. The file is read twice (digest, then body) and never held
// in memory.
func (c *Client) Upload(ctx context.Context, dev sdcp.Device, path string, opts ...UploadOption) (UploadResult, error) {
	if dev.IP == "" {
		return UploadResult{}, errNoDevice
	}
	var o uploadOptions
	for _, opt := range opts {
		opt(&o)
	}

	info, err := files.Inspect(path)
	if err != nil {
		return UploadResult{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	head, tail, contentType, err := multipartFrame(info.Name)
	if err != nil {
		return UploadResult{}, err
	}

	var content io.Reader = io.LimitReader(f, info.Size)
	if o.progress != nil {
		content = o.progress(content)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	u := url.URL{Scheme: "http", Host: c.hostPort(dev), Path: uploadPath}
	body := io.MultiReader(bytes.NewReader(head), content, bytes.NewReader(tail))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("creating upload request: %w", err)
	}
	req.ContentLength = int64(len(head)) + info.Size + int64(len(tail))

	transferID := sdcp.NewToken()
	req.Header.Set("Content-Type", contentType)
	// Assigned directly so the names go out exactly as the mainboard spells
	// them; Header.Set would canonicalize S-File-MD5 and TotalSize.
	req.Header["S-File-MD5"] = []string{info.MD5}
	req.Header["Check"] = []string{"1"}
	req.Header["Offset"] = []string{"0"}
	req.Header["Uuid"] = []string{transferID}
	req.Header["TotalSize"] = []string{strconv.FormatInt(info.Size, 10)}

	c.log.Info("Uploading file",
		zap.String("file", info.Name),
		zap.Int64("size", info.Size),
		zap.String("md5", info.MD5),
		zap.String("uuid", transferID),
		zap.String("url", u.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UploadResult{}, connectError(ctx, "upload", u.String(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return UploadResult{}, connectError(ctx, "read", u.String(), err)
	}

	var reply uploadReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return UploadResult{}, fmt.Errorf("%w: upload reply (HTTP %d): %s", sdcp.ErrProtocol, resp.StatusCode, bytes.TrimSpace(raw))
	}
	if reply.Code == nil {
		return UploadResult{}, fmt.Errorf("%w: upload reply (HTTP %d) has no code", sdcp.ErrProtocol, resp.StatusCode)
	}
	if *reply.Code != sdcp.UploadOK {
		return UploadResult{}, &sdcp.UploadRejectedError{Code: *reply.Code, Messages: messagesText(reply.Messages)}
	}

	c.log.Info("File uploaded", zap.String("file", info.Name))
	return UploadResult{
		LocalName:  info.Name,
		MD5:        info.MD5,
		SizeBytes:  info.Size,
		TransferID: transferID,
	}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartFrame returns the bytes that go before and after the file content
// of a single-part form upload, and the matching Content-Type.
func multipartFrame(filename string) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, uploadField, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", octetStreamType)
	if _, err := mw.CreatePart(h); err != nil {
		return nil, nil, "", fmt.Errorf("building multipart header: %w", err)
	}
	head = append([]byte(nil), buf.Bytes()...)

	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, nil, "", fmt.Errorf("building multipart trailer: %w", err)
	}
	tail = append([]byte(nil), buf.Bytes()...)

	return head, tail, mw.FormDataContentType(), nil
}

// messagesText renders the reply's messages field verbatim: JSON strings
// are unquoted, anything else is kept as raw JSON.
func messagesText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
