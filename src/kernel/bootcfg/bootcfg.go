// Package bootcfg parses the bootloader-supplied kernel command line.
// The bootloader hands the kernel a flat string of space-separated
// key=value tokens (e.g. "loglevel=debug quantum=2 fbmode=text"); this
// is exactly the shape a Go CLI parses with pflag, so bootcfg uses
// github.com/spf13/pflag rather than a bespoke key=value scanner.
package bootcfg

import (
	"strings"

	"github.com/spf13/pflag"
)

// Config is the small, fixed set of boot flags spec §6 implies the
// bootloader may pass through (serial log level, scheduler quantum
// override, framebuffer mode); everything else about the handoff
// (HHDM offset, memory map, ramdisk, framebuffer info, RSDP/DTB
// pointer) arrives as typed bootloader-protocol data, not a command
// line flag, and is out of bootcfg's scope.
type Config struct {
	LogLevel    string
	Quantum     int
	Framebuffer string
}

// Default mirrors what a kernel boots with when the bootloader passes
// no command line at all.
func Default() Config {
	return Config{LogLevel: "info", Quantum: 0, Framebuffer: "auto"}
}

// Parse splits the bootloader's command-line string into pflag
// arguments and decodes it into a Config, starting from Default so a
// partial command line only overrides what it names.
func Parse(cmdline string) (Config, error) {
	cfg := Default()

	fields := strings.Fields(cmdline)
	fs := pflag.NewFlagSet("bootcfg", pflag.ContinueOnError)
	fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "serial console log level")
	fs.IntVar(&cfg.Quantum, "quantum", cfg.Quantum, "scheduler timeslice override in ticks (0 = priority default)")
	fs.StringVar(&cfg.Framebuffer, "fbmode", cfg.Framebuffer, "framebuffer mode hint")

	args := make([]string, 0, len(fields))
	for _, f := range fields {
		args = append(args, "--"+f)
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
