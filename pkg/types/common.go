// pkg/types/common.go
package types

import (
	"errors"
	"strings"
)

// 错误分类 (Error Kinds)
// 所有包都用 %w 包装这两个哨兵，调用方用 errors.Is 判断类别
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")
)

// SignatureLen SHA3-512 = 64 字节，每字节两个十六进制字符
const SignatureLen = 128

// Signature 代表包归档的摘要 (大写十六进制，定长)
// 这是一个“值对象”，应当是不可变的。
type Signature string

func (s Signature) String() string { return string(s) }

func (s Signature) IsZero() bool  { return s == "" }
func (s Signature) IsValid() bool { return len(s) == SignatureLen }

// ParseSignature 解析 .sig 文件内容
// 签名文件末尾带换行，比较前必须 trim
func ParseSignature(raw []byte) Signature {
	return Signature(strings.TrimSpace(string(raw)))
}

// Target 平台标识，例如 "x86_64-unknown-linux"
// 所有远程路径都挂在它下面：<mirror>/<target>/<file>
type Target string

func (t Target) String() string { return string(t) }
