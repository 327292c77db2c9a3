package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var execFile string

// execCmd runs code once and waits for its output.
var execCmd = &cobra.Command{
	Use:   "exec [CODE...]",
	Short: "Execute code on the kernel and print the result",
	Long: `Execute code on the kernel and print the result.

The code is taken from the arguments, from --file, or from standard input
when --file is "-".

Examples:
  hermes exec 'print(1 + 1)'
  hermes exec -f script.py
  echo '2 ** 10' | hermes exec -f -`,
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVarP(&execFile, "file", "f", "", "Read code from a file (\"-\" for standard input)")
}

func runExec(cmd *cobra.Command, args []string) error {
	code, err := readCode(execFile, args)
	if err != nil {
		return err
	}

	conn, err := connectKernel()
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan error, 1)
	if err := conn.Execute(code, func(err error) { done <- err }); err != nil {
		return err
	}
	return <-done
}

// readCode returns the code named by file, or args joined by spaces.
func readCode(file string, args []string) (string, error) {
	switch {
	case file != "" && len(args) > 0:
		return "", errors.New("give code either as arguments or with --file, not both")
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read standard input: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	case len(args) == 0:
		return "", errors.New("no code given")
	}
	return strings.Join(args, " "), nil
}
