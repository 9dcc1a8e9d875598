package sdcp

import (
	"errors"
	"fmt"
)

var (
	ErrDiscoveryTimeout  = errors.New("no printer answered discovery")
	ErrDiscoveryProtocol = errors.New("malformed discovery reply")
	ErrProtocol          = errors.New("unexpected response from printer")
)

// ConnectError reports a transport-level failure to reach the mainboard.
type ConnectError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// UploadRejectedError is returned when the mainboard answers an upload with
// a status code other than UploadOK.
type UploadRejectedError struct {
	Code     string
	Messages string
}

func (e *UploadRejectedError) Error() string {
	if e.Messages == "" {
		return fmt.Sprintf("upload rejected (code %s)", e.Code)
	}
	return fmt.Sprintf("upload rejected (code %s): %s", e.Code, e.Messages)
}

// UploadOK is the status code of an accepted upload.
const UploadOK = "000000"
