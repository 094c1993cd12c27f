package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompter 向用户提问并读取一行回答
type Prompter interface {
	ReadLine(question string) (string, error)
}

// Line 基于任意 Reader/Writer 的行式提问 (通常是 stdin/stdout)
type Line struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Line {
	return &Line{in: bufio.NewReader(in), out: out}
}

// ReadLine 打印问题，返回去掉行尾换行的回答
// 输入在读到任何字符之前就结束时返回 io.EOF
func (l *Line) ReadLine(question string) (string, error) {
	if _, err := fmt.Fprint(l.out, question); err != nil {
		return "", err
	}

	line, err := l.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Confirm 判断 "(Y/n)" 式问题的回答：空、y、yes (不区分大小写) 视为同意
func Confirm(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}
