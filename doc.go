// Package boot loads unikernel boot images and hands control to the kernel
// they contain.
//
// A boot image is either a plain ELF kernel or a gzip-compressed tar archive
// packaging a kernel together with auxiliary files and a hermit.toml
// configuration. [DetectFormat] distinguishes the two, [OpenImage] unpacks an
// archive and resolves the kernel bytes through its configuration.
//
// The heavy lifting lives in the subpackages:
//   - kernel: parses, validates and relocates the kernel ELF
//   - bootinfo: the versioned boot-information contract between loader and
//     kernel
//   - tarimg: the zero-copy archive parser and directory index
//
// # Quick Start
//
// Load a kernel from an image file:
//
//	img, err := boot.OpenImage(data)
//	if err != nil {
//	    return err
//	}
//	obj, err := kernel.Parse(img.Kernel)
//	if err != nil {
//	    return err
//	}
//	mem := make([]byte, obj.MemSize())
//	loaded, err := obj.LoadKernel(mem, base)
package boot
