package transport

import (
	"bytes"
	"fmt"
	"io"
)

const barWidth = 50

// Progress 在终端上渲染单行下载进度
// 格式: "\r* 42% [=====>     ]  123 KB"
type Progress struct {
	out    io.Writer
	total  int64
	count  int64
	status []byte
}

// NewProgress out 为 nil 时不输出任何内容；total 未知时传 0
func NewProgress(out io.Writer, total int64) *Progress {
	return &Progress{
		out:    out,
		total:  total,
		status: bytes.Repeat([]byte{' '}, barWidth),
	}
}

// Write 只计数，不保留数据
func (p *Progress) Write(b []byte) (int, error) {
	p.count += int64(len(b))
	p.Render()
	return len(b), nil
}

// Count 已写入的字节数
func (p *Progress) Count() int64 { return p.count }

// Render 重绘当前进度
func (p *Progress) Render() {
	if p.out == nil {
		return
	}

	var percent, cols int64
	if p.count >= p.total {
		percent, cols = 100, barWidth
	} else {
		percent = 100 * p.count / p.total
		cols = barWidth * p.count / p.total
	}

	for i := int64(0); i < cols; i++ {
		p.status[i] = '='
	}
	if cols < barWidth {
		p.status[cols] = '>'
	}

	size, suffix := humanSize(p.count)
	fmt.Fprintf(p.out, "\r* %3d%% [%s] %4d %s", percent, p.status, size, suffix)
}

// Finish 结束进度行
func (p *Progress) Finish() {
	if p.out == nil {
		return
	}
	fmt.Fprint(p.out, "\n")
}

// humanSize 十进制单位，保留至少两位有效数字
func humanSize(n int64) (int64, string) {
	switch {
	case n >= 10*1000*1000*1000:
		return n / (1000 * 1000 * 1000), "GB"
	case n >= 10*1000*1000:
		return n / (1000 * 1000), "MB"
	case n >= 10*1000:
		return n / 1000, "KB"
	default:
		return n, "B"
	}
}
