package element

import (
	"errors"
	"os/exec"
)

var (
	ErrNothingToPlay = errors.New("no source and no source buffer")
	ErrSourceReset   = errors.New("source buffer reset")
)

type Config struct {
	Binary    string   // player executable
	Args      []string // arguments placed before the source
	NativeHLS bool     // binary opens HLS addresses on its own
	StdinArg  string   // source argument that makes the binary read stdin
}

func (c Config) withDefaultValues() Config {
	if c.Binary == "" {
		c.Binary = "mpv"
	}
	if c.StdinArg == "" {
		c.StdinArg = "-"
	}
	return c
}

// Available reports whether the player binary can be found.
func (c Config) Available() bool {
	_, err := exec.LookPath(c.withDefaultValues().Binary)
	return err == nil
}
