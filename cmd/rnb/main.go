// Command rnb converts ePub files into rnb containers and inspects them.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/simp-lee/rnb"
	"github.com/simp-lee/rnb/internal/logging"
)

const version = "0.1.0"

// errReported marks a failure that has already been logged.
var errReported = errors.New("conversion failed")

// CLI defines the command-line interface for rnb.
var CLI struct {
	LogLevel  string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" default:"text" enum:"text,json" help:"Log format (text, json)"`

	Convert ConvertCmd `cmd:"" help:"Convert an ePub into an rnb container"`
	Dump    DumpCmd    `cmd:"" help:"Print the blocks and images of an rnb container"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// ConvertCmd converts one ePub.
type ConvertCmd struct {
	Path    string `arg:"" help:"Path to the ePub file" type:"existingfile"`
	Out     string `help:"Output path (default: input with .rnb extension)" type:"path"`
	Workers int    `help:"Parallel workers (default: number of CPUs)" default:"0"`
}

func (c *ConvertCmd) Run() error {
	logging.Debug("converting", "input", c.Path, "output", c.Out, "workers", c.Workers)
	start := time.Now()
	res, err := rnb.Convert(c.Path, rnb.Options{
		Output:  c.Out,
		Workers: c.Workers,
	})
	if err != nil {
		logging.ConversionError(c.Path, err)
		return fmt.Errorf("%w: %w", errReported, err)
	}

	logging.Conversion(c.Path, res.Output, res.Blocks, res.Images, res.Size, res.Digest, time.Since(start),
		"title", res.Title, "documents", res.Documents, "paragraphs", res.Paragraphs)
	fmt.Printf("write to %s\n", res.Output)
	return nil
}

// DumpCmd prints a container.
type DumpCmd struct {
	Path string `arg:"" help:"Path to the rnb container" type:"existingfile"`
}

func (c *DumpCmd) Run() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.Path, err)
	}
	container, err := rnb.Decode(data)
	if err != nil {
		return err
	}
	logging.Debug("container decoded", "path", c.Path, "blocks", len(container.Blocks), "images", len(container.Images))
	return rnb.Dump(os.Stdout, container)
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("rnb version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("rnb"),
		kong.Description("Convert ePub books into compact rnb containers"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	level, err := logging.ParseLevel(CLI.LogLevel)
	ctx.FatalIfErrorf(err)
	format, err := logging.ParseFormat(CLI.LogFormat)
	ctx.FatalIfErrorf(err)
	logging.InitLogger(level, format)

	err = ctx.Run()
	if errors.Is(err, errReported) {
		os.Exit(1)
	}
	ctx.FatalIfErrorf(err)
}
