package engine

import (
	"crypto/sha256"
	"encoding/hex"
)

// uidLength 内容标识长度（十六进制字符数）
const uidLength = 16

// ComputeUID 计算产物正文的内容标识
//
// 取正文 UTF-8 字节的 SHA-256 摘要，返回其十六进制表示的前 16 位。
// 同一正文在任何运行中得到同一标识，这是去重的唯一依据。
func ComputeUID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:uidLength]
}
