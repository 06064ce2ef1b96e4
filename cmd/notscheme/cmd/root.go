// Package cmd holds the notscheme CLI's cobra command tree.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wegfawefgawefg/notscheme-go/linker"
	"github.com/wegfawefgawefg/notscheme-go/vm"
)

var (
	verbose      bool
	quiet        bool
	dumpBytecode bool
)

var rootCmd = &cobra.Command{
	Use:   "notscheme <file.ns>",
	Short: "Compile and run a NotScheme program",
	Long:  `notscheme compiles a .ns source file and its module dependencies to bytecode, links them into one image, and executes it on the stack VM.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args[0])
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log module-resolution warnings and diagnostics")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress the \"Running NotScheme program\" banner")
	rootCmd.Flags().BoolVar(&dumpBytecode, "dump-bytecode", false, "print the linked bytecode image before executing it")
}

// Execute runs the root command, exiting with status 1 on any failure
// (spec.md §6: non-.ns paths, missing files, and runtime errors all exit
// non-zero with a diagnostic on standard error).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(path string) error {
	if filepath.Ext(path) != ".ns" {
		return fmt.Errorf("%s: not a .ns source file", path)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	logger := logrus.StandardLogger()
	if !verbose {
		logger.SetLevel(logrus.ErrorLevel)
	}

	dir := filepath.Dir(path)
	moduleName := strings.TrimSuffix(filepath.Base(path), ".ns")

	if !quiet {
		fmt.Printf("Running NotScheme program: %s\n", path)
	}

	l := linker.New(linker.FileLoader(dir), logger)
	img, err := l.Link(moduleName)
	if err != nil {
		return fmt.Errorf("compilation failed: %w", err)
	}

	if dumpBytecode {
		fmt.Println(img.String())
	}

	machine, err := vm.New(img, os.Stdout, logger)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	if err := machine.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error during execution: %s\n", err)
		os.Exit(1)
	}
	return nil
}
