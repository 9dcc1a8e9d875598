package sdcp

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

func TestAckTable(t *testing.T) {
	tests := []struct {
		code int
		want AckCode
		text string
	}{
		{0, AckSuccess, "printing started"},
		{1, AckBusy, "busy"},
		{2, AckFileNotFound, "file not found"},
		{3, AckMD5Mismatch, "MD5"},
		{4, AckFileReadFailed, "read failed"},
		{5, AckResolutionMismatch, "resolution"},
		{6, AckUnsupportedFormat, "format"},
		{7, AckModelMismatch, "model"},
	}
	for _, tt := range tests {
		ack, err := DecodeAck(Response{Data: ResponseData{Data: []byte(`{"Ack":` + strconv.Itoa(tt.code) + `}`)}})
		if err != nil {
			t.Fatalf("code %d: %v", tt.code, err)
		}
		if ack != tt.want {
			t.Errorf("code %d: got %v, want %v", tt.code, ack, tt.want)
		}
		if !ack.Known() {
			t.Errorf("code %d: Known() = false", tt.code)
		}
		if !strings.Contains(ack.String(), tt.text) {
			t.Errorf("code %d: String() = %q, want it to contain %q", tt.code, ack, tt.text)
		}
	}
}

func TestAckUnknown(t *testing.T) {
	for _, code := range []int{-1, 8, 42, 1000} {
		ack := AckCode(code)
		if ack.Known() {
			t.Errorf("%d: Known() = true", code)
		}
		if int(ack) != code {
			t.Errorf("%d: raw code lost: %d", code, int(ack))
		}
		if !strings.Contains(ack.String(), "unknown ack code") {
			t.Errorf("%d: String() = %q", code, ack)
		}
	}
}

func TestAckErr(t *testing.T) {
	if err := AckSuccess.Err(); err != nil {
		t.Errorf("AckSuccess.Err() = %v", err)
	}

	err := AckCode(42).Err()
	var ackErr *AckError
	if !errors.As(err, &ackErr) {
		t.Fatalf("err = %T, want *AckError", err)
	}
	if ackErr.Code != 42 {
		t.Errorf("Code = %d, want 42", ackErr.Code)
	}
	if !strings.Contains(err.Error(), "ack 42") {
		t.Errorf("Error() = %q", err)
	}
}
