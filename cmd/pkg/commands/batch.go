package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errNoPackages = errors.New("no packages specified")

// requireNames 至少需要一个名字，否则整个命令失败
func requireNames(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errNoPackages
	}
	return nil
}

// eachName 按顺序处理每个名字
// 单个名字的失败只打印一行，不影响后续名字，也不影响退出码
func eachName(action string, names []string, fn func(name string) (string, error)) {
	for _, name := range names {
		msg, err := fn(name)
		if err != nil {
			fmt.Fprintf(stderr, "pkg: %s: %s: failed: %v\n", action, name, err)
			continue
		}
		fmt.Fprintf(stderr, "pkg: %s: %s: %s\n", action, name, msg)
	}
}

func mustApp() error {
	if PKG == nil {
		return fmt.Errorf("app not initialized")
	}
	return nil
}
