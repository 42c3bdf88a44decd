package commands

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/KarpelesLab/smartmedia"
)

var statCmd = &cobra.Command{
	Use:   "stat ID...",
	Short: "Print the size and fetch mode of media",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer e.close()

		for _, id := range args {
			h, err := e.m.Open(cmd.Context(), id)
			if err != nil {
				return err
			}
			size := h.Size()
			fmt.Printf("%s\n", id)
			fmt.Printf("  size:     %s (%d bytes)\n", humanize.IBytes(uint64(size)), size)
			fmt.Printf("  mode:     %s\n", h.Mode())
			fmt.Printf("  resolved: %s\n", h.ModTime().Format(time.RFC3339))
			h.Close()

			sources := []smartmedia.Source{{Role: smartmedia.RoleCombined, URL: id}}
			if e.catalog != nil {
				meta, err := e.catalog.Resolve(cmd.Context(), id)
				if err != nil {
					return err
				}
				sources = meta.Sources
			}
			for _, src := range sources {
				merge := ""
				if src.RequiresMerge {
					merge = " (requires merge)"
				}
				fmt.Printf("  source:   %-8s %s%s\n", src.Role, src.URL, merge)
			}
		}
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the media ids of the manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer e.close()

		if e.catalog == nil {
			return errors.New("no manifest configured, set manifest.path")
		}
		for _, id := range e.catalog.IDs() {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(lsCmd)
}
