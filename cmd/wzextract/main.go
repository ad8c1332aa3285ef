// Command wzextract inspects a single image: either a blob saved on its own
// or one image cut out of an archive with --archive.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/wzgo/internal/config"
	"github.com/user/wzgo/internal/logger"
	"github.com/user/wzgo/pkg/imgfile"
	"github.com/user/wzgo/pkg/wz"
)

func main() {
	if err := newCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	archive string
	action  string
	item    string
	out     string
	save    string
}

func newCmd() *cobra.Command {
	var o options
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "wzextract <image>",
		Short: "List an image's properties or extract a canvas or sound payload",
		Long: `wzextract parses one image. <image> is a file path, or with --archive the
path of an image inside that archive.

Actions:
  list     print every property of the image
  extract  write the raw payload of the Canvas or Sound at --item to --out`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, "")
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Logger())
			if err != nil {
				return err
			}
			defer log.Sync()
			return run(cmd.OutOrStdout(), cfg, log, o, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.archive, "archive", "", "read the image out of this archive")
	flags.StringVar(&o.action, "action", "list", "action: list, extract")
	flags.StringVar(&o.item, "item", "", "property path of the payload to extract (for --action extract)")
	flags.StringVarP(&o.out, "out", "o", ".", "output directory for extracted payloads")
	flags.StringVar(&o.save, "save", "", "also write the image blob to this file (with --archive)")
	flags.String("iv", "gms", "keystream IV: gms, ems, zero or 8 hex digits")
	flags.Bool("debug", false, "enable debug logging")
	for key, flag := range map[string]string{"iv": "iv", "debug": "debug"} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
	return cmd
}

func run(out io.Writer, cfg *config.Config, log *zap.Logger, o options, imagePath string) error {
	opts, err := cfg.ArchiveOptions(log)
	if err != nil {
		return err
	}

	var img *imgfile.Image
	if o.archive != "" {
		f, err := wz.Open(o.archive, opts...)
		if err != nil {
			return fmt.Errorf("error opening archive %s: %w", o.archive, err)
		}
		defer f.Close()
		data, err := imgfile.Extract(f, imagePath)
		if err != nil {
			return err
		}
		if o.save != "" {
			if err := os.WriteFile(o.save, data, 0o644); err != nil {
				return fmt.Errorf("error saving image blob to '%s': %w", o.save, err)
			}
			log.Info("saved image blob", zap.String("path", o.save), zap.Int("size", len(data)))
		}
		if img, err = imgfile.Open(data, filepath.Base(imagePath), opts...); err != nil {
			return err
		}
	} else {
		if img, err = imgfile.OpenFile(imagePath, opts...); err != nil {
			return err
		}
	}
	for _, w := range img.Warnings {
		log.Warn("decoded with fallback", zap.Stringer("warning", w))
	}

	switch o.action {
	case "list":
		fmt.Fprintf(out, "%s (%s)\n", img.Root.Name(), humanize.Bytes(uint64(len(img.Bytes()))))
		listProperties(out, img.Root, "  ")
		return nil
	case "extract":
		if o.item == "" {
			return fmt.Errorf("--item is required for the extract action")
		}
		node, err := img.Get(o.item)
		if err != nil {
			return fmt.Errorf("error finding item '%s': %w", o.item, err)
		}
		data, err := img.Payload(node)
		if err != nil {
			return err
		}
		outFilePath := filepath.Join(o.out, payloadFileName(o.item, node.Kind()))
		if err := os.MkdirAll(o.out, 0o755); err != nil {
			return fmt.Errorf("error creating output directory '%s': %w", o.out, err)
		}
		if err := os.WriteFile(outFilePath, data, 0o644); err != nil {
			return fmt.Errorf("error writing payload to '%s': %w", outFilePath, err)
		}
		fmt.Fprintf(out, "Extracted '%s' (%s) to '%s'\n", o.item, humanize.Bytes(uint64(len(data))), outFilePath)
		return nil
	default:
		return fmt.Errorf("unknown action '%s' (supported: list, extract)", o.action)
	}
}

// payloadFileName names an extracted payload after its property path.
// Canvas payloads are zlib streams, sounds are left as stored.
func payloadFileName(item string, kind wz.Kind) string {
	base := strings.ReplaceAll(strings.Trim(item, "/"), "/", "_")
	if kind == wz.KindCanvas {
		return base + ".zlib"
	}
	return base + ".bin"
}

func listProperties(out io.Writer, node *wz.Node, indent string) {
	for name, nodes := range node.Children() {
		for _, child := range nodes {
			if v := child.Value(); v != nil {
				fmt.Fprintf(out, "%s%s = %v\n", indent, name, v)
			} else {
				fmt.Fprintf(out, "%s%s/\n", indent, name)
			}
			listProperties(out, child, indent+"  ")
		}
	}
}
