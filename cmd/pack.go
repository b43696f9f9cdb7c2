package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"voidctl/internal/pack"
	"voidctl/internal/spec"
)

var (
	packSpecPath   string
	packBinaryPath string
	packOutPath    string
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Embed a specification inside a binary's ELF section table",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(packSpecPath)
		if err != nil {
			return err
		}
		defer f.Close()

		var specification spec.Specification
		if err := json.NewDecoder(f).Decode(&specification); err != nil {
			return err
		}

		out := packOutPath
		if out == "" {
			out = packBinaryPath
		}
		return pack.Pack(packBinaryPath, &specification, out)
	},
}

func init() {
	packCmd.Flags().StringVarP(&packSpecPath, "specification", "s", "", "JSON specification to embed")
	packCmd.Flags().StringVarP(&packBinaryPath, "binary", "b", "", "target binary to pack")
	packCmd.Flags().StringVarP(&packOutPath, "out", "o", "", "output path (defaults to overwriting --binary)")
	_ = packCmd.MarkFlagRequired("specification")
	_ = packCmd.MarkFlagRequired("binary")
}
