package utils

import (
	"github.com/skip2/go-qrcode"
)

// GenerateQRCode 生成分享页二维码
func GenerateQRCode(text string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(text, qrcode.Medium, size)
}
