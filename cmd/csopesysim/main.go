// Command csopesysim runs the interactive OS emulator shell. It mirrors
// the teacher's cmd/io and cmd/memoria entry points: parse a minimal
// set of process arguments, set up structured logging, then hand off to
// the module's own Run loop.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sisoputnfrba/csopesysim/internal/config"
	"github.com/sisoputnfrba/csopesysim/internal/obs"
	"github.com/sisoputnfrba/csopesysim/internal/shell"
)

func main() {
	configPath := flag.String("config", "config.txt", "path to the config.txt key-value file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := obs.New(*logLevel, "csopesysim")

	sess := shell.New(os.Stdin, os.Stdout, func() (*config.Config, error) {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return nil, fmt.Errorf("main: %w", err)
		}
		return cfg, nil
	}, log)

	sess.Run()
	os.Exit(0)
}
