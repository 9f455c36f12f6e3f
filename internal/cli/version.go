package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/version"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var versionCheck bool

// releaseChecker is replaced in tests.
//
//nolint:gochecknoglobals // test seam
var releaseChecker = func() *version.Checker { return version.NewChecker(nil) }

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE:  runVersion,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check for a newer release")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	info := version.Current()

	var checkErr error
	if versionCheck {
		ctx, cancel := contextWithTimeout(cmd, version.DefaultTimeout)
		defer cancel()
		if checkErr = releaseChecker().Check(ctx, &info); checkErr != nil {
			cc.Log.Debug("release check failed: %v", checkErr)
		}
	}

	return cc.Fmt.Render(info, func(w io.Writer) error {
		out(w, "satchel %s\n", info)
		switch {
		case checkErr != nil:
			out(w, "Could not check for updates: %v\n", checkErr)
		case info.Update:
			out(w, "A newer release is available: %s\n", info.Latest)
		case versionCheck:
			outln(w, "You are running the latest release.")
		}
		return nil
	})
}
