package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"
)

// HMACSHA256Hex 计算 HMAC-SHA256 十六进制签名
func HMACSHA256Hex(key, content string) string {
	return hmacHex(sha256.New, key, content)
}

// HMACSHA512Hex 计算 HMAC-SHA512 十六进制签名
func HMACSHA512Hex(key, content string) string {
	return hmacHex(sha512.New, key, content)
}

// SignatureEqual 常量时间比较十六进制签名（忽略大小写）
func SignatureEqual(expected, received string) bool {
	received = strings.ToLower(strings.TrimSpace(received))
	if received == "" {
		return false
	}
	return hmac.Equal([]byte(strings.ToLower(expected)), []byte(received))
}

// JoinPipe 以竖线拼接签名原文
func JoinPipe(parts ...string) string {
	return strings.Join(parts, "|")
}

func hmacHex(fn func() hash.Hash, key, content string) string {
	mac := hmac.New(fn, []byte(key))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
