package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinytalk/tinytalk/pkg/image"
	"github.com/tinytalk/tinytalk/pkg/objmodel"
)

func newRunCmd() *cobra.Command {
	var offset int
	cmd := &cobra.Command{
		Use:   "run <image-file>",
		Short: "Load a bytecode image and execute it as a top-level frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}
			defer f.Close()

			img := image.New(cfg, log)
			defer img.Destroy()

			code, err := img.LoadBytecode(f)
			if err != nil {
				return err
			}
			result, err := img.Execute(code, offset)
			if err != nil {
				return err
			}
			fmt.Println(describeRef(img, result))
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "instruction offset to start execution at")
	return cmd
}

func describeRef(img *image.Image, ref objmodel.Ref) string {
	switch ref.Kind {
	case objmodel.KindSymbol:
		return "#" + ref.Sym.Name
	case objmodel.KindClass:
		if ref.Class.Name != nil {
			return ref.Class.Name.Name + " class"
		}
		return "<anonymous class>"
	case objmodel.KindHeap:
		class := img.GetClass(ref)
		if n, ok := img.UnboxInteger(ref); ok {
			return fmt.Sprintf("%d", n)
		}
		if class != nil && class.Name != nil {
			return "a " + class.Name.Name
		}
		return "<instance>"
	default:
		return "nil"
	}
}
