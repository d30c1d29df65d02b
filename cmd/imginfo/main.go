// Command imginfo prints the contents of a boot image and basic facts about
// the kernel it contains.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/mirenvm/boot"
	"github.com/mirenvm/boot/kernel"
	"github.com/mirenvm/boot/tarimg"
)

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: imginfo [-v] <image>")
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "imginfo:", err)
		os.Exit(1)
	}
}

func run(name string, verbose bool) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}

	var opts []boot.Option
	if verbose {
		opts = append(opts, boot.WithLogger(slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	img, err := boot.OpenImage(data, opts...)
	if err != nil {
		return err
	}

	cfg := img.Config
	fmt.Printf("kernel:       %s\n", cfg.Kernel)
	if len(cfg.Input.KernelArgs) > 0 {
		fmt.Printf("kernel args:  %v\n", cfg.Input.KernelArgs)
	}
	if len(cfg.Input.AppArgs) > 0 {
		fmt.Printf("app args:     %v\n", cfg.Input.AppArgs)
	}
	if cfg.Requirements.Memory != 0 {
		fmt.Printf("min memory:   %s\n", cfg.Requirements.Memory)
	}
	if cfg.Requirements.CPUs != 0 {
		fmt.Printf("min cpus:     %d\n", cfg.Requirements.CPUs)
	}

	obj, err := kernel.Parse(img.Kernel)
	if err != nil {
		return err
	}
	fmt.Printf("mem size:     %#x\n", obj.MemSize())
	if addr, ok := obj.StartAddr(); ok {
		fmt.Printf("start addr:   %#x\n", addr)
	} else {
		fmt.Printf("start addr:   relocatable\n")
	}

	fmt.Println("contents:")
	listTree(img.Tree(), ".")
	return nil
}

func listTree(node *tarimg.Tree, prefix string) {
	for name, child := range node.Entries() {
		p := path.Join(prefix, name)
		if child.IsDir() {
			listTree(child, p)
		} else {
			fmt.Printf("  %s (%d bytes)\n", p, len(child.Data()))
		}
	}
}
