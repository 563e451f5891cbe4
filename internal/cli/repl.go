package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

// Session holds REPL state.
type Session struct {
	client *Client
}

// NewSession creates a REPL session over one client.
func NewSession(client *Client) *Session {
	return &Session{client: client}
}

// Run reads and executes commands until exit or EOF.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.New("lcpv> ")
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		args, err := shlex.Split(line)
		if err != nil {
			fmt.Printf("parse command failed: %v\n", err)
			continue
		}
		if s.handle(ctx, args) {
			return nil
		}
	}
}

// handle runs one command; returns true when the session should end.
func (s *Session) handle(ctx context.Context, args []string) bool {
	switch args[0] {
	case "exit", "quit":
		fmt.Println("bye")
		return true
	case "help":
		s.printHelp()
	case "set":
		if len(args) != 3 || args[1] != "base" {
			fmt.Println("usage: set base http://127.0.0.1:8087")
			break
		}
		s.client.SetBaseURL(args[2])
		fmt.Printf("base set to %s\n", args[2])
	case "submit":
		if len(args) != 4 {
			fmt.Println("usage: submit <pid> <language> <source-file>")
			break
		}
		s.submit(ctx, args[1], args[2], args[3])
	case "result":
		if len(args) != 2 {
			fmt.Println("usage: result <sid>")
			break
		}
		s.get(ctx, "/api/v1/judge/submissions/"+args[1])
	case "problems":
		s.get(ctx, "/api/v1/judge/problems?statement=0")
	case "statement":
		if len(args) != 2 {
			fmt.Println("usage: statement <pid>")
			break
		}
		s.get(ctx, "/api/v1/judge/problems/"+args[1]+"/statement")
	case "reset":
		s.post(ctx, "/api/v1/judge/reset", nil)
	default:
		fmt.Printf("unknown command %q, try help\n", args[0])
	}
	return false
}

func (s *Session) submit(ctx context.Context, pid, language, path string) {
	code, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("read source file failed: %v\n", err)
		return
	}
	body, err := json.Marshal(map[string]string{
		"pid":      pid,
		"language": language,
		"code":     string(code),
	})
	if err != nil {
		fmt.Printf("encode request failed: %v\n", err)
		return
	}
	s.post(ctx, "/api/v1/judge/submissions", body)
}

func (s *Session) get(ctx context.Context, path string) {
	data, status, err := s.client.Do(ctx, http.MethodGet, path, nil)
	s.print(data, status, err)
}

func (s *Session) post(ctx context.Context, path string, body []byte) {
	data, status, err := s.client.Do(ctx, http.MethodPost, path, body)
	s.print(data, status, err)
}

func (s *Session) print(data []byte, status int, err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	var pretty json.RawMessage
	if json.Unmarshal(data, &pretty) == nil {
		if out, ierr := json.MarshalIndent(pretty, "", "  "); ierr == nil {
			fmt.Printf("[%d] %s\n", status, out)
			return
		}
	}
	fmt.Printf("[%d] %s\n", status, data)
}

func (s *Session) printHelp() {
	fmt.Println(`commands:
  submit <pid> <language> <source-file>   submit a solution
  result <sid>                            fetch a verdict
  problems                                list problems
  statement <pid>                         show a problem statement
  reset                                   reset the judge state
  set base <url>                          switch target instance
  help | exit`)
}
