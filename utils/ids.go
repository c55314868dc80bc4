package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewReferenceNo 生成捐款订单号
func NewReferenceNo() string {
	return fmt.Sprintf("DN%s", uuid.NewString())
}

// GenerateConnID 生成WebSocket连接ID
func GenerateConnID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// 如果随机数生成失败，使用时间戳+随机数
		return fmt.Sprintf("%d%x", time.Now().UnixNano(), b)
	}
	return hex.EncodeToString(b)
}
