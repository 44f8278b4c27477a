package cmd

import (
	"fmt"
	"io"

	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
	"github.com/smazurov/framepipe/pkg/linuxav/v4l2"
	"github.com/spf13/cobra"
)

type formatReport struct {
	FourCC      string   `json:"fourcc" yaml:"fourcc"`
	Description string   `json:"description" yaml:"description"`
	Emulated    bool     `json:"emulated,omitempty" yaml:"emulated,omitempty"`
	Compressed  bool     `json:"compressed,omitempty" yaml:"compressed,omitempty"`
	Sizes       []string `json:"sizes" yaml:"sizes"`
}

type deviceReport struct {
	Path        string         `json:"path" yaml:"path"`
	Name        string         `json:"name" yaml:"name"`
	ID          string         `json:"id" yaml:"id"`
	MultiPlanar bool           `json:"multi_planar" yaml:"multi_planar"`
	Formats     []formatReport `json:"formats" yaml:"formats"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Usable reports whether the pipeline can capture from the device.
func (d deviceReport) Usable() bool {
	return d.MultiPlanar && d.Error == ""
}

func frameSizeString(s v4l2.FrameSize) string {
	switch s.Type {
	case v4l2.FrameSizeDiscrete:
		return fmt.Sprintf("%dx%d", s.MinWidth, s.MinHeight)
	case v4l2.FrameSizeStepwise:
		return fmt.Sprintf("%dx%d-%dx%d step %d/%d", s.MinWidth, s.MinHeight, s.MaxWidth, s.MaxHeight, s.StepWidth, s.StepHeight)
	}
	return fmt.Sprintf("%dx%d-%dx%d", s.MinWidth, s.MinHeight, s.MaxWidth, s.MaxHeight)
}

func inspectDevice(info v4l2.DeviceInfo) deviceReport {
	report := deviceReport{
		Path:        info.DevicePath,
		Name:        info.DeviceName,
		ID:          info.DeviceID,
		MultiPlanar: info.MultiPlanar(),
		Formats:     []formatReport{},
	}

	dev, err := v4l2.Open(info.DevicePath)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	defer dev.Close()

	bufType := uint32(v4l2.BufTypeVideoCapture)
	if report.MultiPlanar {
		bufType = v4l2.BufTypeVideoCaptureMPlane
	}
	formats, err := dev.Formats(bufType)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	for _, f := range formats {
		fr := formatReport{
			FourCC:      fourcc.Code(f.PixelFormat).String(),
			Description: f.FormatName,
			Emulated:    f.Emulated,
			Compressed:  f.Compressed,
			Sizes:       []string{},
		}
		sizes, err := dev.FrameSizes(f.PixelFormat)
		if err == nil {
			for _, s := range sizes {
				fr.Sizes = append(fr.Sizes, frameSizeString(s))
			}
		}
		report.Formats = append(report.Formats, fr)
	}
	return report
}

func writeDevicesText(w io.Writer, reports []deviceReport) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, "No V4L2 capture devices found")
		return err
	}
	for _, d := range reports {
		api := "single-planar (not supported)"
		if d.MultiPlanar {
			api = "multi-planar"
		}
		fmt.Fprintf(w, "%s  %s  [%s]\n  id: %s\n", d.Path, d.Name, api, d.ID)
		if d.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", d.Error)
			continue
		}
		for _, f := range d.Formats {
			fmt.Fprintf(w, "  %-4s %s", f.FourCC, f.Description)
			if f.Emulated {
				fmt.Fprint(w, " (emulated)")
			}
			fmt.Fprintln(w)
			for _, s := range f.Sizes {
				fmt.Fprintf(w, "       %s\n", s)
			}
		}
	}
	return nil
}

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var output string
	var usableOnly bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List V4L2 capture devices",
		Long:  "Lists capture nodes with their pixel formats and frame sizes. Only multi-planar devices can feed the pipeline.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := v4l2.FindDevices()
			if err != nil {
				return err
			}
			reports := make([]deviceReport, 0, len(infos))
			for _, info := range infos {
				r := inspectDevice(info)
				if usableOnly && !r.Usable() {
					continue
				}
				reports = append(reports, r)
			}
			return render(cmd.OutOrStdout(), output, reports, func(w io.Writer) error {
				return writeDevicesText(w, reports)
			})
		},
	}
	addOutputFlag(cmd, &output)
	cmd.Flags().BoolVar(&usableOnly, "usable", false, "Only list multi-planar devices")
	return cmd
}
