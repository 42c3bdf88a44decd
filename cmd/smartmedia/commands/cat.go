package commands

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat ID",
	Short: "Write media bytes to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, _ := cmd.Flags().GetInt64("offset")
		length, _ := cmd.Flags().GetInt64("length")
		if offset < 0 {
			return errors.Errorf("invalid offset %d", offset)
		}

		e, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer e.close()

		h, err := e.m.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		size := h.Size()
		if length < 0 || offset+length > size {
			length = max(size-offset, 0)
		}

		_, err = h.Seek(offset, io.SeekStart)
		if err != nil {
			return err
		}
		_, err = io.CopyN(os.Stdout, h.Reader(cmd.Context()), length)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	},
}

func init() {
	catCmd.Flags().Int64P("offset", "o", 0, "first byte to write")
	catCmd.Flags().Int64P("length", "n", -1, "number of bytes to write (default is up to the end)")
	rootCmd.AddCommand(catCmd)
}
