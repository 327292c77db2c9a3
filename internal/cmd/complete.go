package cmd

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

var completeCursor int

var completeCmd = &cobra.Command{
	Use:   "complete CODE",
	Short: "Ask the kernel for completions of CODE",
	Long: `Ask the kernel for completions of CODE at --cursor, a character offset
that defaults to the end of CODE. Matches are printed one per line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := args[0]
		pos := completeCursor
		if pos < 0 {
			pos = utf8.RuneCountInString(code)
		}

		conn, err := connectKernel()
		if err != nil {
			return err
		}
		defer conn.Close()

		matches, err := conn.Complete(context.Background(), code, pos)
		if err != nil {
			return err
		}
		for _, m := range matches {
			fmt.Println(m)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completeCmd)
	completeCmd.Flags().IntVar(&completeCursor, "cursor", -1, "Cursor position in characters (default: end of CODE)")
}
