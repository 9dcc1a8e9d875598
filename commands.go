package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"

	"github.com/john/chitu_uploader/devicesim"
	"github.com/john/chitu_uploader/files"
	"github.com/john/chitu_uploader/printer"
	"github.com/john/chitu_uploader/sdcp"
)

// session returns a Discovered session, from the pinned printer when one
// is configured and from a discovery round otherwise.
func (a *app) session(ctx context.Context) (*printer.PrintSession, printer.Session, error) {
	disc, err := a.discoverer()
	if err != nil {
		return nil, printer.Session{}, err
	}
	ps := printer.NewPrintSession(disc, a.client(), a.log.Named("session"))

	if dev, ok := a.cfg.PinnedDevice(); ok {
		return ps, printer.Attach(dev), nil
	}
	s, err := ps.Discover(ctx)
	return ps, s, err
}

func newDiscoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Find a printer on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			disc, err := a.discoverer()
			if err != nil {
				return err
			}
			dev, err := disc.Discover(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Printer found: IP=%s MainboardID=%s", dev.IP, dev.MainboardID)
			if dev.MachineName != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " Model=%q", dev.MachineName)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	var noProgress bool
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file to the printer's local storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			opts, finish := progressOption(args[0], noProgress)
			s, err = ps.Upload(cmd.Context(), s, args[0], opts...)
			finish(err)
			if err != nil {
				return err
			}
			res := s.Upload()
			fmt.Fprintf(cmd.OutOrStdout(), "File '%s' uploaded successfully (%d bytes, md5 %s)\n", res.LocalName, res.SizeBytes, res.MD5)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar")
	return cmd
}

func newFilesCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List files stored on the printer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			list, err := a.client().ListFiles(cmd.Context(), s.Device(), dir)
			if err != nil {
				return err
			}
			for _, f := range list {
				fmt.Fprintln(cmd.OutOrStdout(), f.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", sdcp.LocalStorage, "storage directory to list")
	return cmd
}

func newStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start <printer-file>",
		Short: "Start printing a file already stored on the printer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ack, err := a.client().StartPrint(cmd.Context(), s.Device(), args[0])
			if err != nil {
				return err
			}
			if err := ack.Err(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Printing started for '%s'\n", args[0])
			return nil
		},
	}
}

func newPrintCmd(a *app) *cobra.Command {
	var noProgress bool
	cmd := &cobra.Command{
		Use:   "print <file>",
		Short: "Upload a file and start printing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			opts, finish := progressOption(args[0], noProgress)
			s, err = ps.RunFrom(cmd.Context(), s, args[0], opts...)
			finish(err)
			if err != nil {
				return fmt.Errorf("session stopped at %s: %w", s.State(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Printing started for '%s'\n", s.File().Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar")
	return cmd
}

func newEmulateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "emulate",
		Short: "Run a simulated printer on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := a.cfg.Simulator
			store, err := files.NewStore(sc.Dir)
			if err != nil {
				return err
			}
			dev := sdcp.Device{IP: sc.IP, MainboardID: sc.MainboardID}
			sim := devicesim.New(dev, store,
				devicesim.WithMachineName(sc.MachineName),
				devicesim.WithLogger(a.log.Named("simulator")))

			httpAddr := fmt.Sprintf(":%d", a.cfg.Printer.HTTPPort)
			udpAddr := fmt.Sprintf(":%d", a.cfg.Discovery.Port)
			return sim.ListenAndServe(cmd.Context(), httpAddr, udpAddr)
		},
	}
}

// progressOption returns the upload option drawing a progress bar for path
// and a func to call once the upload returned.
func progressOption(path string, disabled bool) ([]printer.UploadOption, func(error)) {
	st, err := os.Stat(path)
	if disabled || err != nil || st.Size() == 0 {
		return nil, func(error) {}
	}

	progress := mpb.New(
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)
	bar := progress.AddBar(st.Size(),
		mpb.PrependDecorators(
			decor.Name(filepath.Base(path), decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 90),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
		),
	)

	opt := printer.WithProgress(func(r io.Reader) io.Reader {
		return bar.ProxyReader(r)
	})
	finish := func(err error) {
		if err != nil {
			bar.Abort(false)
		} else {
			bar.SetTotal(-1, true)
		}
		progress.Wait()
	}
	return []printer.UploadOption{opt}, finish
}
