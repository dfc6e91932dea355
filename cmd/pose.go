package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/rayven/internal/optic"
	"github.com/sells-group/rayven/internal/pose"
)

var (
	poseMount mountFlags
	poseJSON  bool
)

var poseCmd = &cobra.Command{
	Use:   "pose",
	Short: "Pose the telescope or projector and print its global frames",
	RunE: func(cmd *cobra.Command, _ []string) error {
		band, err := poseMount.resolveBand()
		if err != nil {
			return err
		}
		mount, err := pose.FromSpec(poseMount.spec(), band)
		if err != nil {
			return err
		}
		om, err := pose.Build(mount, optic.DirSource(cfg.Models.Dir))
		if err != nil {
			return err
		}

		if poseJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(om)
		}
		formatPose(os.Stdout, om)
		return nil
	},
}

// formatPose writes one line per item: its global origin and optical axis.
func formatPose(out io.Writer, om *optic.Model) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tROLE\tX\tY\tZ\tAXIS")
	_, _ = fmt.Fprintln(w, "----\t----\t-\t-\t-\t----")
	for i := 0; i < om.Len(); i++ {
		it := om.Item(i)
		o := it.Frame.Origin
		r := it.Frame.Rot.Rows()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.6f\t%.6f\t%.6f\t(%.4f, %.4f, %.4f)\n",
			it.Name, it.Role, o.X, o.Y, o.Z, r[0][2], r[1][2], r[2][2])
	}
	_ = w.Flush()
}

func init() {
	poseMount.register(poseCmd)
	poseCmd.Flags().BoolVar(&poseJSON, "json", false, "print the posed model as engine JSON")
	rootCmd.AddCommand(poseCmd)
}
