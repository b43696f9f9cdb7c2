package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"voidctl/internal/orchestrator"
)

var runArgs orchestrator.RunArgs

var rootCmd = &cobra.Command{
	Use:   "voidctl <binary> [args...]",
	Short: "Launch a multi-entrypoint binary into namespace-isolated voids",
	Long: `voidctl spawns each entrypoint declared by a specification into a
freshly-isolated Linux namespace sandbox (a "void"), wiring pipes, file-
descriptor-passing sockets, and TCP listeners between them as declared.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}

		runArgs.Binary = args[0]
		runArgs.BinaryArgs = args[1:]

		code, err := orchestrator.Run(runArgs)
		if err != nil {
			return err
		}
		os.Exit(code)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&runArgs.SpecPath, "specification", "s", "", "JSON specification path; otherwise read the section embedded in the binary")
	rootCmd.Flags().BoolP("verbose", "v", false, "raise the log level")
	rootCmd.Flags().BoolVarP(&runArgs.Debug, "debug", "d", false, "each spawned entrypoint SIGSTOPs itself after voiding, for attaching a debugger before exec")
	rootCmd.Flags().BoolVarP(&runArgs.Daemon, "daemon", "D", false, "exit immediately after spawning, without awaiting children")
	rootCmd.Flags().BoolVar(&runArgs.Stdout, "stdout", false, "grant every entrypoint the Stdout capability")
	rootCmd.Flags().BoolVar(&runArgs.Stderr, "stderr", false, "grant every entrypoint the Stderr capability")
}

// Execute runs the root command and adds child commands.
func Execute() {
	rootCmd.AddCommand(packCmd)

	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("voidctl: error")
		os.Exit(-1)
	}
}
