package client

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ValidationError describes a rejected command-line argument.
type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// Options is the parsed command line.
type Options struct {
	ServerURL string
	Username  string
	Password  string
	Command   string // "upload", "fetch" or "info"
	Paths     []string
	ID        string
	Output    string
}

const usage = `usage: stash [flags] upload <path>...
       stash [flags] fetch <id>
       stash [flags] info <id>

Password is read from the STASH_PASSWORD environment variable.

flags:
  -server URL   server base URL (default $STASH_SERVER or http://localhost:8080)
  -user NAME    username for Basic auth (default $STASH_USER)
  -o PATH       output path for fetch (default the upload id)
`

// ParseArgs parses and validates the command line.
func ParseArgs(args []string) (*Options, error) {
	flags := flag.NewFlagSet("stash", flag.ContinueOnError)
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	opts := &Options{Password: os.Getenv("STASH_PASSWORD")}
	flags.StringVar(&opts.ServerURL, "server", envOr("STASH_SERVER", "http://localhost:8080"), "server base URL")
	flags.StringVar(&opts.Username, "user", os.Getenv("STASH_USER"), "username for Basic auth")
	flags.StringVar(&opts.Output, "o", "", "output path for fetch")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		return nil, &ValidationError{Arg: "<command>", Cause: "no command provided"}
	}

	opts.Command = rest[0]
	switch opts.Command {
	case "upload":
		if len(rest) < 2 {
			return nil, &ValidationError{Arg: "upload", Cause: "no files provided"}
		}
		opts.Paths = rest[1:]
	case "fetch", "info":
		if len(rest) != 2 {
			return nil, &ValidationError{Arg: opts.Command, Cause: "exactly one upload id required"}
		}
		opts.ID = rest[1]
	default:
		return nil, &ValidationError{Arg: opts.Command, Cause: "unknown command"}
	}

	return opts, nil
}

// ExpandPaths resolves file and directory arguments into the flat list of
// files to upload. Directories are walked recursively.
func ExpandPaths(paths []string) ([]string, error) {
	var out []string

	for _, raw := range paths {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		if !info.IsDir() {
			out = append(out, p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", p, err)
		}
	}

	if len(out) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files to upload"}
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
