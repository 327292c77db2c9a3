package cmd

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/shlex"
	"github.com/reeflective/readline"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/inercia/hermes/internal/config"
	"github.com/inercia/hermes/internal/logging"
)

// completionTimeout bounds the kernel round trip behind Tab.
const completionTimeout = 2 * time.Second

// Tab completions reach the kernel at most this often, with a small burst.
const (
	completionInterval = 250 * time.Millisecond
	completionBurst    = 2
)

// cellMarker separates cells in files given to /load.
const cellMarker = "# %%"

// replCmd represents the repl command
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive session with a kernel",
	Long: `Start an interactive session with a kernel.

Each line is executed on the kernel and its output printed. Tab completes
slash commands, and asks the kernel for completions otherwise.

Commands:
  /load FILE            - Execute a file, one request per "# %%" cell
  /complete CODE [POS]  - Show the kernel's completions of CODE
  /kernel               - Show the attached kernel
  /metrics              - Show request counters
  /quit, /exit          - Exit
  /help                 - Show available commands`,
	Args: cobra.NoArgs,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

// session is the part of a kernel connection the REPL drives.
type session interface {
	KernelID() string
	Language() string
	Execute(code string, done func(error)) error
	Complete(ctx context.Context, code string, cursorPos int) ([]string, error)
	Metrics() *expvar.Map
}

// slashCommands defines the available slash commands with their descriptions.
var slashCommands = []struct {
	name        string
	description string
}{
	{"/help", "Show available commands"},
	{"/h", "Show available commands (alias)"},
	{"/?", "Show available commands (alias)"},
	{"/load", "Execute a file cell by cell"},
	{"/complete", "Show the kernel's completions"},
	{"/kernel", "Show the attached kernel"},
	{"/metrics", "Show request counters"},
	{"/quit", "Exit the REPL"},
	{"/exit", "Exit the REPL (alias)"},
	{"/q", "Exit the REPL (alias)"},
}

// errQuit ends the interactive loop.
var errQuit = errors.New("quit")

func runREPL(cmd *cobra.Command, args []string) error {
	conn, err := connectKernel()
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfgFile != "" {
		w, err := config.NewWatcher(cfgFile, live, logging.Settings())
		if err != nil {
			return fmt.Errorf("failed to watch configuration: %w", err)
		}
		w.OnReload(func(_ *config.Config, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "\n⚠️  Ignoring invalid configuration: %v\n", err)
			}
		})
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to watch configuration: %w", err)
		}
		defer w.Close()
	}

	r := &repl{
		sess:    conn,
		out:     os.Stdout,
		limiter: rate.NewLimiter(rate.Every(completionInterval), completionBurst),
	}

	// Create readline shell
	rl := readline.NewShell()
	rl.Prompt.Primary(func() string { return conn.Language() + "> " })

	// Set up history
	history := readline.NewInMemoryHistory()
	rl.History.Add("default", history)

	rl.Completer = func(line []rune, cursor int) readline.Completions {
		if cursor > len(line) {
			cursor = len(line)
		}
		text := string(line[:cursor])
		if strings.HasPrefix(text, "/") {
			return completeInput(text, len(text))
		}
		return r.completeCode(text)
	}

	fmt.Printf("\n🔌 Connected to kernel %s (%s). Use /help for commands.\n", conn.KernelID(), conn.Language())

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				fmt.Println("\n👋 Goodbye!")
				return nil
			}
			return err
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "/") {
			if err := r.handleCommand(strings.TrimSpace(line)); err != nil {
				if errors.Is(err, errQuit) {
					fmt.Println("👋 Goodbye!")
					return nil
				}
				fmt.Fprintf(r.out, "❌ %v\n", err)
			}
			continue
		}
		if err := r.run(line); err != nil {
			fmt.Fprintf(r.out, "❌ %v\n", err)
		}
	}
}

type repl struct {
	sess session
	out  io.Writer
	// limiter throttles kernel completions from Tab. Nil means no limit.
	limiter *rate.Limiter
}

// run executes the cells in order and waits for all of them. The kernel
// sees them in submission order.
func (r *repl) run(cells ...string) error {
	done := make(chan error, len(cells))
	submitted := 0
	for _, code := range cells {
		if err := r.sess.Execute(code, func(err error) { done <- err }); err != nil {
			done <- err
			break
		}
		submitted++
	}

	var errs []error
	for i := 0; i < submitted; i++ {
		if err := <-done; err != nil {
			errs = append(errs, err)
		}
	}
	if submitted < len(cells) {
		errs = append(errs, <-done)
	}
	return errors.Join(errs...)
}

func (r *repl) handleCommand(line string) error {
	parts, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("cannot parse command: %w", err)
	}
	if len(parts) == 0 {
		return nil
	}

	switch strings.ToLower(strings.TrimPrefix(parts[0], "/")) {
	case "quit", "exit", "q":
		return errQuit
	case "help", "h", "?":
		printHelp(r.out)
	case "kernel":
		fmt.Fprintf(r.out, "Kernel %s (%s)\n", r.sess.KernelID(), r.sess.Language())
	case "metrics":
		r.sess.Metrics().Do(func(kv expvar.KeyValue) {
			fmt.Fprintf(r.out, "  %-16s %s\n", kv.Key, kv.Value)
		})
	case "load":
		if len(parts) != 2 {
			return errors.New("usage: /load FILE")
		}
		data, err := os.ReadFile(parts[1])
		if err != nil {
			return err
		}
		cells := splitCells(string(data))
		if len(cells) == 0 {
			return fmt.Errorf("%s has no code", parts[1])
		}
		return r.run(cells...)
	case "complete":
		if len(parts) < 2 || len(parts) > 3 {
			return errors.New("usage: /complete CODE [POS]")
		}
		code := parts[1]
		pos := utf8.RuneCountInString(code)
		if len(parts) == 3 {
			if pos, err = strconv.Atoi(parts[2]); err != nil {
				return fmt.Errorf("invalid position %q", parts[2])
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
		defer cancel()
		matches, err := r.sess.Complete(ctx, code, pos)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Fprintln(r.out, "No completions.")
		}
		for _, m := range matches {
			fmt.Fprintln(r.out, m)
		}
	default:
		return fmt.Errorf("unknown command: %s (use /help for available commands)", parts[0])
	}
	return nil
}

// completeCode asks the kernel for completions of the text before the
// cursor. Matches that do not extend the word being typed are dropped,
// since the shell replaces only that word.
func (r *repl) completeCode(text string) readline.Completions {
	if strings.TrimSpace(text) == "" {
		return readline.Completions{}
	}
	if r.limiter != nil && !r.limiter.Allow() {
		logging.CLI().Debug("completion throttled")
		return readline.Completions{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()
	matches, err := r.sess.Complete(ctx, text, utf8.RuneCountInString(text))
	if err != nil {
		logging.CLI().Debug("completion failed", "error", err)
		return readline.Completions{}
	}

	word := lastWord(text)
	var values []string
	for _, m := range matches {
		if strings.HasPrefix(m, word) {
			values = append(values, m)
		}
	}
	if len(values) == 0 {
		return readline.Completions{}
	}
	return readline.CompleteValues(values...).Tag("kernel")
}

func lastWord(text string) string {
	if i := strings.LastIndexAny(text, " \t\n"); i >= 0 {
		return text[i+1:]
	}
	return text
}

// splitCells splits source at "# %%" marker lines, dropping blank cells.
func splitCells(src string) []string {
	var cells []string
	var cur []string
	flush := func() {
		if code := strings.TrimSpace(strings.Join(cur, "\n")); code != "" {
			cells = append(cells, strings.Join(cur, "\n"))
		}
		cur = nil
	}
	for _, line := range strings.Split(src, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), cellMarker) {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return cells
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `
Available commands:
  /load FILE            - Execute a file, one request per "# %%" cell
  /complete CODE [POS]  - Show the kernel's completions of CODE
  /kernel               - Show the attached kernel
  /metrics              - Show request counters
  /quit, /exit, /q      - Exit the REPL
  /help, /h, /?         - Show this help message

Tips:
  - Type code and press Enter to execute it on the kernel
  - Use Ctrl+C or Ctrl+D to exit
  - Use up/down arrows for history
  - Use Tab to complete commands and code`)
}

// completeInput provides tab completion for slash commands.
func completeInput(line string, cursor int) readline.Completions {
	// Get the text up to the cursor position
	if cursor > len(line) {
		cursor = len(line)
	}
	text := line[:cursor]

	// Only complete if the line starts with "/"
	if !strings.HasPrefix(text, "/") {
		return readline.Completions{}
	}

	matches := matchSlashCommands(text)
	if len(matches) == 0 {
		return readline.Completions{}
	}

	// Format: value1, desc1, value2, desc2, ...
	pairs := make([]string, 0, len(matches)*2)
	for _, i := range matches {
		pairs = append(pairs, slashCommands[i].name, slashCommands[i].description)
	}

	return readline.CompleteValuesDescribed(pairs...).
		Tag("commands").
		NoSpace('/')
}

// matchSlashCommands returns the indexes into slashCommands of the commands
// starting with prefix.
func matchSlashCommands(prefix string) []int {
	var idx []int
	for i, cmd := range slashCommands {
		if strings.HasPrefix(cmd.name, prefix) {
			idx = append(idx, i)
		}
	}
	return idx
}
