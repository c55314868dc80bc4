package utils

import (
	"bytes"
	"testing"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G'}

func TestGenerateQRCode(t *testing.T) {
	data, err := GenerateQRCode("http://localhost/campaigns/1/donate", 128)
	if err != nil {
		t.Fatalf("GenerateQRCode: %v", err)
	}
	if !bytes.HasPrefix(data, pngHeader) {
		t.Error("output is not a PNG image")
	}
}

func TestGenerateQRCodeDefaultSize(t *testing.T) {
	data, err := GenerateQRCode("hello", 0)
	if err != nil {
		t.Fatalf("GenerateQRCode: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty image with default size")
	}
}
