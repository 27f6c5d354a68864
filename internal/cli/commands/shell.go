package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/blocksql/internal/cli/output"
	"github.com/leapstack-labs/blocksql/internal/executor"
	"github.com/leapstack-labs/blocksql/pkg/blocksql"
	"github.com/spf13/cobra"
)

const (
	shellPrompt     = "blocksql> "
	shellContPrompt = "    ...> "
	historyFileName = ".blocksql_history"
)

// NewShellCommand creates the shell command.
func NewShellCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell for rendering and running blocks",
		Long: `Start an interactive shell connected to the target database.

Plain SQL ending in a semicolon runs directly. Dot commands render and run
the sql blocks of a template:

  .templates                 List templates
  .use <template>            Select a template
  .blocks                    List the blocks of the selected template
  .render <block> [k=v ...]  Render a block
  .run <block> [k=v ...]     Render a block and run it

Parameters accept the same type prefixes as --param. A value of @name passes
the conditional block "name", and @a,b passes several.`,
		Example: `  # Shell against the configured target
  blocksql shell

  # Shell against a sqlite file
  blocksql shell --dsn app.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Statement timeout")

	return cmd
}

func runShell(cmd *cobra.Command, timeout time.Duration) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := executor.Open(ctx, *cmdCtx.Cfg.Target)
	if err != nil {
		return fmt.Errorf("failed to open %s target: %w", cmdCtx.Cfg.Target.Type, err)
	}
	s := newShellSession(cmdCtx, executor.NewRunner(db, cmdCtx.Logger), timeout)
	defer func() { _ = s.runner.Close() }()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     filepath.Join(cmdCtx.Cfg.ProjectRoot, historyFileName),
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r := cmdCtx.Renderer
	r.Printf("blocksql shell (%s, sql root %s)\n", cmdCtx.Cfg.Target.Type, cmdCtx.Cfg.SQLRoot)
	r.Println("Type .help for commands, .quit to exit")
	r.Println("")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			s.reset()
			rl.SetPrompt(s.prompt())
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}

		if s.handle(ctx, line) {
			return nil
		}
		rl.SetPrompt(s.prompt())
	}
}

// shellSession holds the state of one interactive shell. It is independent of
// readline so lines can be fed to it directly.
type shellSession struct {
	cmdCtx   *CommandContext
	runner   *executor.Runner
	timeout  time.Duration
	template string
	factory  *blocksql.Factory
	buf      strings.Builder
}

func newShellSession(cmdCtx *CommandContext, runner *executor.Runner, timeout time.Duration) *shellSession {
	return &shellSession{cmdCtx: cmdCtx, runner: runner, timeout: timeout}
}

func (s *shellSession) prompt() string {
	if s.buf.Len() > 0 {
		return shellContPrompt
	}
	if s.template != "" {
		return "blocksql(" + s.template + ")> "
	}
	return shellPrompt
}

func (s *shellSession) reset() { s.buf.Reset() }

// handle processes one input line and reports whether the shell should exit.
func (s *shellSession) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if s.buf.Len() == 0 && strings.HasPrefix(line, ".") {
		quit, err := s.dot(ctx, line)
		if err != nil {
			s.cmdCtx.Renderer.Error(err.Error())
		}
		return quit
	}

	s.buf.WriteString(line)
	if !strings.HasSuffix(line, ";") {
		s.buf.WriteString(" ")
		return false
	}

	stmt := strings.TrimSuffix(s.buf.String(), ";")
	s.buf.Reset()
	if err := s.execute(ctx, stmt); err != nil {
		s.cmdCtx.Renderer.Error(err.Error())
	}
	return false
}

func (s *shellSession) dot(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	r := s.cmdCtx.Renderer

	switch command := strings.ToLower(parts[0]); command {
	case ".quit", ".exit":
		return true, nil

	case ".help":
		printShellHelp(r.Writer())

	case ".templates":
		names, err := s.cmdCtx.Snaql.List()
		if err != nil {
			return false, err
		}
		for _, name := range names {
			r.Println(name)
		}

	case ".use":
		if len(parts) != 2 {
			return false, errors.New("usage: .use <template>")
		}
		f, err := s.cmdCtx.Snaql.LoadQueries(parts[1])
		if err != nil {
			return false, err
		}
		s.template, s.factory = parts[1], f
		r.Success(fmt.Sprintf("using %s (%s)", parts[1], output.Count(f.Len(), "block")))

	case ".blocks":
		if s.factory == nil {
			return false, errors.New("no template selected (use .use <template>)")
		}
		for _, b := range s.factory.Blocks() {
			detail := b.Note
			if b.IsCond {
				detail = "cond for " + b.CondFor
			}
			r.StatusLine(b.Name, "skipped", detail)
		}

	case ".render", ".run":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: %s <block> [key=value ...]", command)
		}
		stmt, err := s.render(parts[1], parts[2:])
		if err != nil {
			return false, err
		}
		if command == ".render" {
			r.Println(stmt)
			return false, nil
		}
		return false, s.execute(ctx, stmt)

	case ".clear":
		r.Printf("\033[H\033[2J")

	default:
		return false, fmt.Errorf("unknown command: %s (type .help for commands)", command)
	}
	return false, nil
}

// render renders a block of the selected template. Arguments are key=value
// pairs; a value of @a[,b] passes conditional blocks.
func (s *shellSession) render(block string, args []string) (string, error) {
	if s.factory == nil {
		return "", errors.New("no template selected (use .use <template>)")
	}
	g, err := s.factory.Get(block)
	if err != nil {
		return "", err
	}

	var pf paramFlags
	for _, arg := range args {
		key, value, err := splitAssignment(arg, "argument")
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(value, "@") {
			pf.conds = append(pf.conds, key+"="+strings.TrimPrefix(value, "@"))
			continue
		}
		pf.values = append(pf.values, arg)
	}

	params, _, err := pf.build(s.factory)
	if err != nil {
		return "", err
	}
	return g.Render(params)
}

func (s *shellSession) execute(ctx context.Context, stmt string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	r := s.cmdCtx.Renderer
	if executor.IsQuery(stmt) {
		res, err := s.runner.Query(ctx, stmt)
		if err != nil {
			return err
		}
		return r.Table(output.ResultSet{Columns: res.Columns, Rows: res.Rows})
	}

	res, err := s.runner.Exec(ctx, stmt)
	if err != nil {
		return err
	}
	if res.RowsAffected >= 0 {
		r.Success(fmt.Sprintf("%s affected", output.Count(int(res.RowsAffected), "row")))
	} else {
		r.Success("statement executed")
	}
	return nil
}

// blockNames feeds tab completion for .render and .run.
func (s *shellSession) blockNames(string) []string {
	if s.factory == nil {
		return nil
	}
	return s.factory.Names()
}

func (s *shellSession) templateNames(string) []string {
	names, err := s.cmdCtx.Snaql.List()
	if err != nil {
		return nil
	}
	return names
}

func (s *shellSession) completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".templates"),
		readline.PcItem(".use", readline.PcItemDynamic(s.templateNames)),
		readline.PcItem(".blocks"),
		readline.PcItem(".render", readline.PcItemDynamic(s.blockNames)),
		readline.PcItem(".run", readline.PcItemDynamic(s.blockNames)),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}

func printShellHelp(w io.Writer) {
	help := `
Commands:
  .help                      Show this help message
  .templates                 List templates under the sql root
  .use <template>            Select a template
  .blocks                    List the blocks of the selected template
  .render <block> [k=v ...]  Render a block (k=@cond passes a conditional block)
  .run <block> [k=v ...]     Render a block and run it
  .clear                     Clear the screen
  .quit / .exit              Exit the shell

Tips:
  - SQL statements must end with a semicolon (;)
  - Tab completion works for templates and block names
`
	_, _ = fmt.Fprintln(w, help)
}
