package digest

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"pkgutils/pkg/types"

	"golang.org/x/crypto/sha3"
)

// Digester 计算本地文件的签名
// 默认实现直接读盘，sigcache 在它外面套一层 Redis 记忆
type Digester interface {
	FileSignature(ctx context.Context, path string) (types.Signature, error)
}

// Render 把摘要字节渲染成签名
// 每个字节固定两位大写十六进制，保证渲染是单射的
func Render(sum []byte) types.Signature {
	return types.Signature(strings.ToUpper(hex.EncodeToString(sum)))
}

// Sum 计算内存数据的签名 (SHA3-512)
func Sum(data []byte) types.Signature {
	sum := sha3.Sum512(data)
	return Render(sum[:])
}

// Reader 流式计算签名，避免把大归档一次性读进内存
func Reader(r io.Reader) (types.Signature, error) {
	h := sha3.New512()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return Render(h.Sum(nil)), nil
}

// FileDigester 是无缓存的 Digester
type FileDigester struct{}

func NewFileDigester() *FileDigester {
	return &FileDigester{}
}

func (d *FileDigester) FileSignature(ctx context.Context, path string) (types.Signature, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", path, types.ErrNotFound)
		}
		return "", err
	}
	defer f.Close()

	sig, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return sig, nil
}
