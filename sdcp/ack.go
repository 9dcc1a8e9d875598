package sdcp

import "fmt"

// AckCode is the mainboard's acknowledgment of a start-print request.
// Codes outside the known set keep their raw value.
type AckCode int

const (
	AckSuccess AckCode = iota
	AckBusy
	AckFileNotFound
	AckMD5Mismatch
	AckFileReadFailed
	AckResolutionMismatch
	AckUnsupportedFormat
	AckModelMismatch
)

var ackText = [...]string{
	AckSuccess:            "printing started",
	AckBusy:               "printer is busy",
	AckFileNotFound:       "file not found on the printer",
	AckMD5Mismatch:        "MD5 verification failed",
	AckFileReadFailed:     "file read failed on the printer",
	AckResolutionMismatch: "resolution mismatch",
	AckUnsupportedFormat:  "unsupported file format",
	AckModelMismatch:      "machine model mismatch",
}

// Known reports whether c is one of the documented codes.
func (c AckCode) Known() bool {
	return c >= AckSuccess && c <= AckModelMismatch
}

func (c AckCode) String() string {
	if c.Known() {
		return ackText[c]
	}
	return fmt.Sprintf("unknown ack code %d", int(c))
}

// Err returns nil for AckSuccess and an *AckError otherwise.
func (c AckCode) Err() error {
	if c == AckSuccess {
		return nil
	}
	return &AckError{Code: c}
}

// AckError is a non-success acknowledgment surfaced to the caller.
type AckError struct {
	Code AckCode
}

func (e *AckError) Error() string {
	return fmt.Sprintf("print rejected: %s (ack %d)", e.Code, int(e.Code))
}
