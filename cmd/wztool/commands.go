package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/wzgo/pkg/imgfile"
	"github.com/user/wzgo/pkg/wz"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <archive>",
		Short: "Print the archive header and entry counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var dirs, images int
			f.Root().Walk(func(n *wz.Node) bool {
				switch n.Kind() {
				case wz.KindDirectory:
					dirs++
				case wz.KindImage:
					images++
				}
				return true
			})
			h := f.Header()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:        %s (%s)\n", args[0], humanize.Bytes(h.FileSize))
			fmt.Fprintf(out, "Copyright:   %s\n", h.Copyright)
			fmt.Fprintf(out, "Data start:  %#x\n", h.DataStart)
			fmt.Fprintf(out, "Version:     %d (hash %#x)\n", f.Version(), f.Hash())
			// the root itself is a directory
			fmt.Fprintf(out, "Directories: %d\n", dirs-1)
			fmt.Fprintf(out, "Images:      %d\n", images)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "list <archive> [path]",
		Short: "List the tree below path",
		Long: `list prints the tree below path, one node per line, indented by depth.
Images crossed by path are expanded; images below it are listed unexpanded
with their blob size.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			node := f.Root()
			if len(args) == 2 {
				if node, err = f.Get(args[1]); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), node.Path())
			listContents(cmd.OutOrStdout(), f, node, 1, depth)
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum depth to print; 0 prints everything")
	return cmd
}

// listContents prints the children of node. depth counts from 1 below the
// listed node.
func listContents(out io.Writer, f *wz.File, node *wz.Node, depth, maxDepth int) {
	if maxDepth > 0 && depth > maxDepth {
		return
	}
	indent := strings.Repeat("  ", depth)
	for name, nodes := range node.Children() {
		for _, child := range nodes {
			fmt.Fprintf(out, "%s%s %s\n", indent, name, describe(f, child))
			listContents(out, f, child, depth+1, maxDepth)
		}
	}
}

// describe renders a node's kind and value on one line.
func describe(f *wz.File, n *wz.Node) string {
	switch v := n.Value().(type) {
	case *wz.Canvas:
		s := fmt.Sprintf("(Canvas) %dx%d %s, %s compressed", v.Width, v.Height, v.FormatName(), humanize.Bytes(uint64(v.ByteSize)))
		if size, err := v.DecodedSize(); err == nil {
			s += ", " + humanize.Bytes(uint64(size)) + " decoded"
		}
		if v.Encrypted {
			s += ", encrypted"
		}
		return s
	case *wz.Sound:
		return fmt.Sprintf("(Sound) %s at %d Hz, %s", v.Duration, v.Frequency, humanize.Bytes(uint64(v.ByteSize)))
	case wz.UOL:
		return fmt.Sprintf("(UOL) -> %s", v.Target)
	case wz.Vector2D:
		return fmt.Sprintf("(Vector2D) %d,%d", v.X, v.Y)
	case wz.String:
		return fmt.Sprintf("(String) %q", string(v))
	case nil:
	default:
		return fmt.Sprintf("(%s) %v", n.Kind(), v)
	}
	if n.Kind() == wz.KindImage {
		if _, size, err := f.ImageSpan(n); err == nil {
			return fmt.Sprintf("(Image) %s", humanize.Bytes(uint64(size)))
		}
	}
	return fmt.Sprintf("(%s)", n.Kind())
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <archive> <path>",
		Short: "Resolve path and print the node it names",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			node, err := f.Get(args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", node.Path(), describe(f, node))
			if names := node.Names(); len(names) > 0 {
				fmt.Fprintf(out, "children: %s\n", strings.Join(names, ", "))
			}
			for _, w := range f.Warnings() {
				a.log.Warn("decoded with fallback", zap.Stringer("warning", w))
			}
			return nil
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <encrypted> [version]",
		Short: "Check a header version tag against a version, or list matching versions",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := strconv.ParseUint(args[0], 0, 16)
			if err != nil {
				return fmt.Errorf("invalid encrypted version %q: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				for v := 0; v <= a.cfg.MaxVersion; v++ {
					if hash, ok := wz.VerifyVersion(uint16(enc), v); ok {
						fmt.Fprintf(out, "%d hash=%d\n", v, hash)
					}
				}
				return nil
			}
			version, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[1], err)
			}
			hash, ok := wz.VerifyVersion(uint16(enc), version)
			if !ok {
				return fmt.Errorf("%w: version %d has tag %d, not %d",
					wz.ErrVersionMismatch, version, wz.VersionCheckByte(version), enc)
			}
			fmt.Fprintf(out, "ok hash=%d\n", hash)
			return nil
		},
	}
}

func newExtractCmd(a *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "extract <archive> <image-path>",
		Short: "Write one image's raw blob to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			outFilePath := filepath.Join(outDir, filepath.Base(args[1]))
			if err := extractImage(f, args[1], outFilePath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Image '%s' extracted to '%s'\n", args[1], outFilePath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	return cmd
}

func newExtractAllCmd(a *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "extract-all <archive>",
		Short: "Write every image's raw blob below a directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var images []*wz.Node
			f.Root().Walk(func(n *wz.Node) bool {
				if n.Kind() == wz.KindImage {
					images = append(images, n)
				}
				return true
			})
			rootPrefix := f.Root().Path() + "/"
			for _, img := range images {
				rel := strings.TrimPrefix(img.Path(), rootPrefix)
				outFilePath := filepath.Join(outDir, filepath.FromSlash(rel))
				if err := extractImage(f, rel, outFilePath); err != nil {
					// keep going; one bad entry should not stop the dump
					a.log.Error("failed to extract image", zap.String("path", rel), zap.Error(err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Extracting %s -> %s\n", rel, outFilePath)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All images extracted to:", outDir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	return cmd
}

// extractImage copies the blob of the image at path to outFilePath.
func extractImage(f *wz.File, path, outFilePath string) error {
	data, err := imgfile.Extract(f, path)
	if err != nil {
		return err
	}
	outDir := filepath.Dir(outFilePath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory '%s': %w", outDir, err)
	}
	if err := os.WriteFile(outFilePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write extracted image to '%s': %w", outFilePath, err)
	}
	return nil
}
