package commands

import (
	"io"
	"os"
	"path"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var getCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Download media to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		quiet, _ := cmd.Flags().GetBool("quiet")
		if output == "" {
			output = path.Base(args[0])
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

		dest, err := os.Create(output)
		if err != nil {
			return errors.Wrap(err, "failed to create output file")
		}
		defer dest.Close()

		var reader io.Reader = h.Reader(cmd.Context())
		var p *mpb.Progress
		var bar *mpb.Bar
		if !quiet {
			p = mpb.New(
				mpb.WithWidth(60),
				mpb.WithRefreshRate(180*time.Millisecond),
			)
			bar = p.New(h.Size(),
				mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding("-").Rbound("|"),
				mpb.PrependDecorators(
					decor.CountersKibiByte("\t% .2f / % .2f"),
				),
				mpb.AppendDecorators(
					decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done"),
					decor.Name(" ] "),
					decor.AverageSpeed(decor.SizeB1024(0), "% .2f", decor.WCSyncWidth),
				),
			)
			pr := bar.ProxyReader(reader)
			defer pr.Close()
			reader = pr
		}

		n, err := io.Copy(dest, reader)
		if p != nil {
			if err != nil {
				bar.Abort(false)
			} else {
				// the size may have been provisional
				bar.SetTotal(-1, true)
			}
			p.Wait()
		}
		if err != nil {
			return errors.Wrap(err, "download failed")
		}

		log.WithFields(log.Fields{"id": args[0], "file": output, "bytes": n}).Info("downloaded")
		return nil
	},
}

func init() {
	getCmd.Flags().StringP("output", "o", "", "output file (default is the base name of ID)")
	getCmd.Flags().BoolP("quiet", "q", false, "do not show a progress bar")
	rootCmd.AddCommand(getCmd)
}
