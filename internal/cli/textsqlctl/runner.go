package textsqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
	// ReadPassword prompts for a password when none is given on the command
	// line. Nil reads from the terminal without echo.
	ReadPassword func(prompt string) (string, error)
}

// request is one API call derived from the command line.
type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	auth        bool
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	readPassword := defaults.ReadPassword
	if readPassword == nil {
		readPassword = terminalPassword(stderr)
	}

	fs := flag.NewFlagSet("textsqlctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8000"), "Text-to-SQL API base URL")
	token := fs.String("token", defaults.Token, "bearer token from the login command")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	command := strings.TrimSpace(fs.Arg(0))
	req, err := buildRequest(command, fs.Args()[1:], stderr, readPassword)
	if err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
			writeUsage(stderr)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", command, err)
		return 1
	}
	if req.auth && strings.TrimSpace(*token) == "" {
		_, _ = fmt.Fprintf(stderr, "%s requires a token: run login and pass -token or set TEXTSQL_TOKEN\n", command)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	bearer := ""
	if req.auth {
		bearer = *token
	}
	code, responseBody, err := doRequest(ctx, client, req, endpoint, bearer)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildRequest(command string, args []string, stderr io.Writer, readPassword func(string) (string, error)) (request, error) {
	switch command {
	case "health":
		return request{method: http.MethodGet, path: "/health"}, nil
	case "ready":
		return request{method: http.MethodGet, path: "/ready"}, nil
	case "register":
		fs := subcommand("register", stderr)
		password := fs.String("password", "", "password (prompted when empty)")
		if err := fs.Parse(args); err != nil {
			return request{}, usageError{msg: err.Error()}
		}
		if fs.NArg() != 2 {
			return request{}, usageError{msg: "register needs <email> <username>"}
		}
		secret, err := passwordOrPrompt(*password, readPassword)
		if err != nil {
			return request{}, err
		}
		return jsonRequest(http.MethodPost, "/api/auth/register", false, map[string]any{
			"email":    fs.Arg(0),
			"username": fs.Arg(1),
			"password": secret,
		})
	case "login":
		fs := subcommand("login", stderr)
		password := fs.String("password", "", "password (prompted when empty)")
		if err := fs.Parse(args); err != nil {
			return request{}, usageError{msg: err.Error()}
		}
		if fs.NArg() != 1 {
			return request{}, usageError{msg: "login needs <username>"}
		}
		secret, err := passwordOrPrompt(*password, readPassword)
		if err != nil {
			return request{}, err
		}
		form := url.Values{"username": {fs.Arg(0)}, "password": {secret}}
		return request{
			method:      http.MethodPost,
			path:        "/api/auth/login",
			body:        strings.NewReader(form.Encode()),
			contentType: "application/x-www-form-urlencoded",
		}, nil
	case "profile":
		return request{method: http.MethodGet, path: "/api/user/profile", auth: true}, nil
	case "ask":
		fs := subcommand("ask", stderr)
		database := fs.Int64("database", 0, "registered database id (default store when 0)")
		explain := fs.Bool("explain", false, "include an explanation of the SQL")
		if err := fs.Parse(args); err != nil {
			return request{}, usageError{msg: err.Error()}
		}
		question := strings.TrimSpace(strings.Join(fs.Args(), " "))
		if question == "" {
			return request{}, usageError{msg: "ask needs a question"}
		}
		payload := map[string]any{"question": question, "explain": *explain}
		if *database > 0 {
			payload["database_id"] = *database
		}
		return jsonRequest(http.MethodPost, "/api/query/execute", true, payload)
	case "explain":
		sqlText := strings.TrimSpace(strings.Join(args, " "))
		if sqlText == "" {
			return request{}, usageError{msg: "explain needs a SQL statement"}
		}
		return jsonRequest(http.MethodPost, "/api/query/explain", true, map[string]any{"sql": sqlText})
	case "history":
		fs := subcommand("history", stderr)
		limit := fs.Int("limit", 0, "number of entries (server default when 0)")
		if err := fs.Parse(args); err != nil {
			return request{}, usageError{msg: err.Error()}
		}
		path := "/api/query/history"
		if *limit > 0 {
			path += "?limit=" + strconv.Itoa(*limit)
		}
		return request{method: http.MethodGet, path: path, auth: true}, nil
	case "databases":
		return request{method: http.MethodGet, path: "/api/database/list", auth: true}, nil
	case "add-database":
		if len(args) != 2 {
			return request{}, usageError{msg: "add-database needs <name> <path>"}
		}
		return jsonRequest(http.MethodPost, "/api/database/add", true, map[string]any{"name": args[0], "path": args[1]})
	case "schema":
		if len(args) != 1 {
			return request{}, usageError{msg: "schema needs <database-id>"}
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return request{}, usageError{msg: fmt.Sprintf("invalid database id %q", args[0])}
		}
		return request{method: http.MethodGet, path: "/api/database/" + strconv.FormatInt(id, 10) + "/schema", auth: true}, nil
	case "upload":
		if len(args) != 1 {
			return request{}, usageError{msg: "upload needs <file>"}
		}
		return uploadRequest(args[0])
	case "restore":
		if len(args) != 1 {
			return request{}, usageError{msg: "restore needs <archive-key>"}
		}
		return jsonRequest(http.MethodPost, "/api/datasets/restore", true, map[string]any{"key": args[0]})
	case "chat":
		message := strings.TrimSpace(strings.Join(args, " "))
		if message == "" {
			return request{}, usageError{msg: "chat needs a message"}
		}
		return jsonRequest(http.MethodPost, "/api/chat", true, map[string]any{"message": message})
	default:
		return request{}, usageError{msg: fmt.Sprintf("unknown command %q", command)}
	}
}

func subcommand(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func jsonRequest(method, path string, auth bool, payload any) (request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("encode request: %w", err)
	}
	return request{method: method, path: path, body: bytes.NewReader(raw), contentType: "application/json", auth: auth}, nil
}

// uploadRequest buffers the file as a multipart body with a single "file"
// part. The server enforces the size limit.
func uploadRequest(path string) (request, error) {
	file, err := os.Open(path)
	if err != nil {
		return request{}, err
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return request{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return request{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return request{}, err
	}
	return request{
		method:      http.MethodPost,
		path:        "/api/datasets/upload",
		body:        &body,
		contentType: writer.FormDataContentType(),
		auth:        true,
	}, nil
}

func passwordOrPrompt(password string, readPassword func(string) (string, error)) (string, error) {
	if password != "" {
		return password, nil
	}
	secret, err := readPassword("Password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if secret == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return secret, nil
}

func terminalPassword(stderr io.Writer) func(string) (string, error) {
	return func(prompt string) (string, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("stdin is not a terminal; pass -password")
		}
		_, _ = fmt.Fprint(stderr, prompt)
		secret, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(stderr)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}
}

func doRequest(ctx context.Context, client *http.Client, call request, endpoint, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, call.method, endpoint, call.body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if call.contentType != "" {
		req.Header.Set("Content-Type", call.contentType)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: textsqlctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                          GET /health")
	_, _ = fmt.Fprintln(w, "  ready                           GET /ready")
	_, _ = fmt.Fprintln(w, "  register <email> <username>     POST /api/auth/register")
	_, _ = fmt.Fprintln(w, "  login <username>                POST /api/auth/login")
	_, _ = fmt.Fprintln(w, "  profile                         GET /api/user/profile")
	_, _ = fmt.Fprintln(w, "  ask [-database id] [-explain] <question>")
	_, _ = fmt.Fprintln(w, "                                  POST /api/query/execute")
	_, _ = fmt.Fprintln(w, "  explain <sql>                   POST /api/query/explain")
	_, _ = fmt.Fprintln(w, "  history [-limit n]              GET /api/query/history")
	_, _ = fmt.Fprintln(w, "  databases                       GET /api/database/list")
	_, _ = fmt.Fprintln(w, "  add-database <name> <path>      POST /api/database/add")
	_, _ = fmt.Fprintln(w, "  schema <database-id>            GET /api/database/{id}/schema")
	_, _ = fmt.Fprintln(w, "  upload <file>                   POST /api/datasets/upload")
	_, _ = fmt.Fprintln(w, "  restore <archive-key>           POST /api/datasets/restore")
	_, _ = fmt.Fprintln(w, "  chat <message>                  POST /api/chat")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
