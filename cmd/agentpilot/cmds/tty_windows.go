//go:build windows

package cmds

import (
	"io"
	"os"
)

type console struct {
	io.Reader
	io.Writer
}

func (console) Close() error { return nil }

func openTTY() (io.ReadWriteCloser, error) {
	return console{Reader: os.Stdin, Writer: os.Stdout}, nil
}
