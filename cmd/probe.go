package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/smazurov/framepipe/internal/display"
	"github.com/smazurov/framepipe/internal/logging"
	"github.com/smazurov/framepipe/pkg/linuxav/drm"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
	"github.com/spf13/cobra"
)

type connectorReport struct {
	ID        uint32   `json:"id" yaml:"id"`
	Connected bool     `json:"connected" yaml:"connected"`
	Modes     []string `json:"modes" yaml:"modes"`
}

type planeReport struct {
	ID            uint32   `json:"id" yaml:"id"`
	Type          string   `json:"type" yaml:"type"`
	PossibleCrtcs uint32   `json:"possible_crtcs" yaml:"possible_crtcs"`
	Formats       []string `json:"formats" yaml:"formats"`
}

type chainReport struct {
	Connector uint32 `json:"connector" yaml:"connector"`
	Mode      string `json:"mode" yaml:"mode"`
	Encoder   uint32 `json:"encoder" yaml:"encoder"`
	Crtc      uint32 `json:"crtc" yaml:"crtc"`
	CrtcIndex int    `json:"crtc_index" yaml:"crtc_index"`
	Plane     uint32 `json:"plane" yaml:"plane"`
}

type displayReport struct {
	Device     string            `json:"device" yaml:"device"`
	Format     string            `json:"format" yaml:"format"`
	Connectors []connectorReport `json:"connectors" yaml:"connectors"`
	Crtcs      []uint32          `json:"crtcs" yaml:"crtcs"`
	Planes     []planeReport     `json:"planes" yaml:"planes"`
	Chain      chainReport       `json:"chain" yaml:"chain"`
}

func planeTypeName(t uint64) string {
	switch t {
	case drm.PlaneTypePrimary:
		return "primary"
	case drm.PlaneTypeCursor:
		return "cursor"
	}
	return "overlay"
}

func modeString(m drm.ModeInfo) string {
	s := fmt.Sprintf("%s@%d", m.Name(), m.Vrefresh)
	if m.Preferred() {
		s += " (preferred)"
	}
	return s
}

func buildDisplayReport(dev *display.Device, format string) displayReport {
	g := dev.Graph()
	chain := dev.Chain()
	r := displayReport{
		Device: dev.Stats().Device,
		Format: format,
		Chain: chainReport{
			Connector: chain.Connector.ID,
			Mode:      modeString(chain.Mode),
			Encoder:   chain.Encoder.ID,
			Crtc:      chain.Crtc.ID,
			CrtcIndex: chain.CrtcIndex,
			Plane:     chain.Plane.ID,
		},
	}
	for _, c := range g.Connectors {
		cr := connectorReport{ID: c.ID, Connected: c.IsConnected(), Modes: []string{}}
		for _, m := range c.Modes {
			cr.Modes = append(cr.Modes, modeString(m))
		}
		r.Connectors = append(r.Connectors, cr)
	}
	for _, c := range g.Crtcs {
		r.Crtcs = append(r.Crtcs, c.ID)
	}
	for _, p := range g.Planes {
		pr := planeReport{ID: p.ID, Type: planeTypeName(p.Type), PossibleCrtcs: p.PossibleCrtcs}
		for _, f := range p.Formats {
			pr.Formats = append(pr.Formats, fourcc.Code(f).String())
		}
		r.Planes = append(r.Planes, pr)
	}
	return r
}

func writeDisplayText(w io.Writer, r displayReport) error {
	fmt.Fprintf(w, "Device:   %s\n", r.Device)
	fmt.Fprintf(w, "Selected: connector %d, mode %s, encoder %d, crtc %d (index %d), plane %d for %s\n",
		r.Chain.Connector, r.Chain.Mode, r.Chain.Encoder, r.Chain.Crtc, r.Chain.CrtcIndex, r.Chain.Plane, r.Format)
	fmt.Fprintln(w, "Connectors:")
	for _, c := range r.Connectors {
		state := "disconnected"
		if c.Connected {
			state = "connected"
		}
		fmt.Fprintf(w, "  %d %s %s\n", c.ID, state, strings.Join(c.Modes, ", "))
	}
	fmt.Fprintf(w, "CRTCs: %v\n", r.Crtcs)
	fmt.Fprintln(w, "Planes:")
	for _, p := range r.Planes {
		fmt.Fprintf(w, "  %d %-7s crtcs=%#x %s\n", p.ID, p.Type, p.PossibleCrtcs, strings.Join(p.Formats, " "))
	}
	return nil
}

// CreateProbeDisplayCmd creates the probe-display command. It opens and
// enumerates the card but never commits a mode. resolve returns the
// display section of the parsed options.
func CreateProbeDisplayCmd(resolve func() (display.Config, error)) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "probe-display",
		Short: "Show the DRM objects and the output chain that run would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolve()
			if err != nil {
				return err
			}
			dev, err := display.New(cfg, display.WithLogger(logging.GetLogger("display")))
			if err != nil {
				return err
			}
			defer dev.Close()

			if err := dev.Open(); err != nil {
				return err
			}
			if err := dev.Discover(); err != nil {
				return err
			}
			report := buildDisplayReport(dev, cfg.Format)
			return render(cmd.OutOrStdout(), output, report, func(w io.Writer) error {
				return writeDisplayText(w, report)
			})
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}
