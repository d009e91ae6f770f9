package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/textsql/textsql/internal/chart"
	"github.com/textsql/textsql/internal/dataset"
	"github.com/textsql/textsql/internal/nl2sql"
	"github.com/textsql/textsql/internal/pipeline"
	"github.com/textsql/textsql/internal/query"
)

const helpText = `Type a question to turn it into SQL and run it.

Commands:
  :upload <file>     load a .csv, .parquet, .db or .sqlite file
  :schema            show the tables of the active store
  :history           list the questions asked in this session
  :chart <x> <y>     chart the last result with the given columns;
                     quote names with spaces: :chart "first name" salary
  :explain on|off    toggle plain-language explanations
  :chat <message>    ask the general assistant
  :help              show this help
  :quit              leave the shell`

type ShellOptions struct {
	Pipeline     *pipeline.Pipeline
	Introspector query.Introspector
	// Datasets is optional; without it uploads are refused.
	Datasets  *dataset.Service
	Assistant nl2sql.Assistant
	StorePath string
	Explain   bool
	Out       io.Writer
	MaxRows   int
}

// Shell holds one interactive session: the active store, the in-memory
// history and the last result for re-charting.
type Shell struct {
	pipeline     *pipeline.Pipeline
	introspector query.Introspector
	datasets     *dataset.Service
	assistant    nl2sql.Assistant
	session      *pipeline.Session
	history      *pipeline.MemoryHistory
	out          io.Writer
	maxRows      int
	last         *query.Result
}

func NewShell(opts ShellOptions) (*Shell, error) {
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if opts.Introspector == nil {
		return nil, fmt.Errorf("introspector is required")
	}
	if strings.TrimSpace(opts.StorePath) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	history := pipeline.NewMemoryHistory()
	return &Shell{
		pipeline:     opts.Pipeline,
		introspector: opts.Introspector,
		datasets:     opts.Datasets,
		assistant:    opts.Assistant,
		session:      &pipeline.Session{StorePath: opts.StorePath, Recorder: history, Explain: opts.Explain},
		history:      history,
		out:          out,
		maxRows:      opts.MaxRows,
	}, nil
}

func (s *Shell) History() []pipeline.Attempt {
	return s.history.Entries()
}

// Run reads commands from in until EOF or :quit. Command failures are
// printed and the loop continues.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	s.println(titleStyle.Render("textsql") + mutedStyle.Render("  store: "+s.session.StorePath+"  (:help for commands)"))
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		s.print(promptStyle.Render("sql> "))
		if !scanner.Scan() {
			s.println("")
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		quit, err := s.Dispatch(ctx, scanner.Text())
		if err != nil {
			s.println(errorStyle.Render("error: ") + err.Error())
		}
		if quit {
			return nil
		}
	}
}

// Dispatch runs one line of input. It reports whether the shell should
// stop.
func (s *Shell) Dispatch(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ":") {
		return false, s.Ask(ctx, line)
	}

	command, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(command) {
	case "q", "quit", "exit":
		return true, nil
	case "h", "help":
		s.println(helpText)
		return false, nil
	case "upload":
		return false, s.Upload(ctx, rest)
	case "schema":
		return false, s.Schema(ctx)
	case "history":
		s.printHistory()
		return false, nil
	case "chart":
		axes, err := splitColumnNames(rest)
		if err != nil || len(axes) != 2 {
			return false, errors.New("usage: :chart <x column> <y column> (quote names with spaces)")
		}
		return false, s.Chart(axes[0], axes[1])
	case "explain":
		switch strings.ToLower(rest) {
		case "on":
			s.session.Explain = true
		case "off":
			s.session.Explain = false
		default:
			return false, errors.New("usage: :explain on|off")
		}
		s.println(mutedStyle.Render(fmt.Sprintf("explanations %s", rest)))
		return false, nil
	case "chat":
		return false, s.Chat(ctx, rest)
	default:
		return false, fmt.Errorf("unknown command :%s (try :help)", command)
	}
}

// Ask runs question through the pipeline and prints SQL, result,
// explanation and the suggested chart.
func (s *Shell) Ask(ctx context.Context, question string) error {
	attempt, err := s.pipeline.Run(ctx, s.session, question)
	if attempt.SQLGenerated {
		s.println(titleStyle.Render("Generated SQL"))
		s.println(sqlStyle.Render(attempt.SQL))
	}
	if err != nil {
		return err
	}

	if attempt.Outcome.Failed() {
		s.println(errorStyle.Render("Query failed: ") + attempt.Outcome.Error)
		return nil
	}
	result := *attempt.Outcome.Result
	s.last = &result
	s.println(RenderTable(result, s.maxRows))
	s.println(mutedStyle.Render(fmt.Sprintf("executed in %.3fs", attempt.Outcome.Duration.Seconds())))

	switch {
	case attempt.Explanation != "":
		s.println(titleStyle.Render("Explanation"))
		s.println(attempt.Explanation)
	case attempt.ExplanationErr != nil:
		s.println(errorStyle.Render("Explanation unavailable: ") + attempt.ExplanationErr.Error())
	}

	if spec, ok := chart.Suggest(result); ok {
		s.println(RenderBars(spec, 0))
	}
	return nil
}

// Upload loads the file at path into the active store.
func (s *Shell) Upload(ctx context.Context, path string) error {
	if s.datasets == nil {
		return errors.New("uploads are not available in this session")
	}
	if path == "" {
		return errors.New("usage: :upload <file>")
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = file.Close() }()

	upload, err := s.datasets.Upload(ctx, s.session.StorePath, "", filepath.Base(path), file)
	if err != nil {
		return err
	}
	if upload.Kind.Tabular() {
		s.println(successStyle.Render("Loaded ") + fmt.Sprintf("%d rows into %s", upload.Rows, upload.Table))
	} else {
		s.println(successStyle.Render("Replaced ") + "the active store with " + upload.Filename)
	}
	if upload.ArchiveKey != "" {
		s.println(mutedStyle.Render("archived as " + upload.ArchiveKey))
	}
	return nil
}

func (s *Shell) Schema(ctx context.Context) error {
	schema, err := s.introspector.Introspect(ctx, s.session.StorePath)
	if err != nil {
		return err
	}
	s.println(renderSchema(schema))
	return nil
}

// Chart re-charts the last result over the given columns.
func (s *Shell) Chart(x, y string) error {
	if s.last == nil {
		return errors.New("no result to chart yet")
	}
	spec, err := chart.Build(*s.last, x, y)
	if err != nil {
		return err
	}
	s.println(RenderBars(spec, 0))
	return nil
}

// splitColumnNames splits line on whitespace. A name wrapped in double
// quotes, single quotes or backticks may contain spaces.
func splitColumnNames(line string) ([]string, error) {
	var names []string
	for {
		line = strings.TrimLeft(line, " \t")
		if line == "" {
			return names, nil
		}
		if quote := line[0]; quote == '"' || quote == '\'' || quote == '`' {
			end := strings.IndexByte(line[1:], quote)
			if end < 0 {
				return nil, fmt.Errorf("unterminated %c in %q", quote, line)
			}
			names = append(names, line[1:end+1])
			line = line[end+2:]
			continue
		}
		end := strings.IndexAny(line, " \t")
		if end < 0 {
			end = len(line)
		}
		names = append(names, line[:end])
		line = line[end:]
	}
}

func (s *Shell) Chat(ctx context.Context, message string) error {
	if s.assistant == nil {
		return errors.New("the assistant is not available in this session")
	}
	if message == "" {
		return errors.New("usage: :chat <message>")
	}
	answer, err := s.assistant.Chat(ctx, message)
	if err != nil {
		return err
	}
	s.println(answer)
	return nil
}

func (s *Shell) printHistory() {
	entries := s.history.Entries()
	if len(entries) == 0 {
		s.println(mutedStyle.Render("(no questions yet)"))
		return
	}
	for i, entry := range entries {
		status := successStyle.Render("ok")
		if entry.Failed() {
			status = errorStyle.Render("error")
		}
		s.println(fmt.Sprintf("%d. [%s] %s", i+1, status, entry.Question))
		if entry.SQLGenerated {
			s.println("   " + sqlStyle.Render(entry.SQL))
		}
		if message := entry.ErrorMessage(); message != "" {
			s.println("   " + mutedStyle.Render(message))
		}
	}
}

func (s *Shell) print(text string) {
	_, _ = io.WriteString(s.out, text)
}

func (s *Shell) println(text string) {
	_, _ = io.WriteString(s.out, text+"\n")
}
