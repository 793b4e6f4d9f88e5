package exif

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/listenupapp/takeout-fixer/internal/errors"
)

// ExifTool drives one long-lived exiftool process in -stay_open mode, feeding
// it argument lines on stdin. Writes are serialised. A write abandoned through
// its context kills the process; the next write starts a fresh one.
type ExifTool struct {
	mu     sync.Mutex
	path   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	stderr *bufio.Scanner
	seq    int
	closed bool
	logger *slog.Logger
}

// StartExifTool launches binary (usually "exiftool") in stay-open mode.
func StartExifTool(binary string, logger *slog.Logger) (*ExifTool, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeMetadata, "locate exiftool %q", binary)
	}

	et := &ExifTool{path: path, logger: logger}
	if err := et.start(); err != nil {
		return nil, err
	}
	return et, nil
}

func (et *ExifTool) start() error {
	cmd := exec.Command(et.path, "-stay_open", "True", "-@", "-") //#nosec G204 -- binary is operator configuration
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, errors.CodeMetadata, "start exiftool")
	}

	et.cmd = cmd
	et.stdin = stdin
	et.stdout = bufio.NewScanner(stdout)
	et.stderr = bufio.NewScanner(stderr)
	et.logger.Debug("exiftool started", "path", et.path, "pid", cmd.Process.Pid)
	return nil
}

// kill stops a process that stopped answering. Waiting closes its pipes,
// which unblocks any reader still scanning them.
func (et *ExifTool) kill() {
	if et.cmd == nil {
		return
	}
	_ = et.cmd.Process.Kill()
	_ = et.cmd.Wait()
	et.logger.Warn("exiftool killed", "pid", et.cmd.Process.Pid)
	et.cmd = nil
}

type exifToolReply struct {
	stdout, stderr string
	err            error
}

// Write embeds tags into path, replacing the original file.
func (et *ExifTool) Write(ctx context.Context, path string, tags []Tag) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	et.mu.Lock()
	defer et.mu.Unlock()

	if et.closed {
		return errors.Metadata("exiftool is closed")
	}
	if et.cmd == nil {
		if err := et.start(); err != nil {
			return err
		}
	}

	et.seq++
	seq := strconv.Itoa(et.seq)
	args := writeArgs(path, tags, et.seq)
	if _, err := io.WriteString(et.stdin, strings.Join(args, "\n")+"\n"); err != nil {
		et.kill()
		return errors.Wrapf(err, errors.CodeMetadata, "send arguments to exiftool")
	}

	replies := make(chan exifToolReply, 1)
	stdoutScanner, stderrScanner := et.stdout, et.stderr
	go func() {
		stdout, err := readUntil(stdoutScanner, "{ready"+seq+"}")
		if err != nil {
			replies <- exifToolReply{err: errors.Wrapf(err, errors.CodeMetadata, "read exiftool output")}
			return
		}
		stderr, err := readUntil(stderrScanner, "{done"+seq+"}")
		if err != nil {
			replies <- exifToolReply{err: errors.Wrapf(err, errors.CodeMetadata, "read exiftool errors")}
			return
		}
		replies <- exifToolReply{stdout: stdout, stderr: stderr}
	}()

	var reply exifToolReply
	select {
	case reply = <-replies:
	case <-ctx.Done():
		et.kill()
		return ctx.Err()
	}
	if reply.err != nil {
		et.kill()
		return reply.err
	}

	if err := checkResult(reply.stdout, reply.stderr); err != nil {
		return errors.Wrapf(err, errors.CodeMetadata, "write metadata to %s", path)
	}
	return nil
}

// Close asks exiftool to exit and waits for it.
func (et *ExifTool) Close() error {
	et.mu.Lock()
	defer et.mu.Unlock()

	if et.closed {
		return nil
	}
	et.closed = true
	if et.cmd == nil {
		return nil
	}

	if _, err := io.WriteString(et.stdin, "-stay_open\nFalse\n"); err != nil {
		et.kill()
		return err
	}
	if err := et.stdin.Close(); err != nil {
		return err
	}
	return et.cmd.Wait()
}

// writeArgs builds the argument lines for one write, numbered seq so the
// replies on both streams can be matched to it.
func writeArgs(path string, tags []Tag, seq int) []string {
	args := []string{"-overwrite_original", "-charset", "utf8"}
	for _, t := range tags {
		// "-Tag=" deletes a tag; "^=" stores an empty string instead.
		op := "="
		if t.Value == "" {
			op = "^="
		}
		args = append(args, argLine("-"+t.Name+op+t.Value))
	}
	args = append(args,
		argLine(path),
		"-echo4", "{done"+strconv.Itoa(seq)+"}",
		"-execute"+strconv.Itoa(seq),
	)
	return args
}

var cstrReplacer = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

// argLine escapes values that would otherwise break the one-argument-per-line
// protocol, using exiftool's #[CSTR] argfile syntax.
func argLine(arg string) string {
	if !strings.ContainsAny(arg, "\n\r") {
		return arg
	}
	return "#[CSTR]" + cstrReplacer.Replace(arg)
}

func readUntil(s *bufio.Scanner, marker string) (string, error) {
	var out strings.Builder
	for s.Scan() {
		line := s.Text()
		if strings.HasPrefix(line, marker) {
			return out.String(), nil
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := s.Err(); err != nil {
		return out.String(), err
	}
	return out.String(), io.ErrUnexpectedEOF
}

var updatedRe = regexp.MustCompile(`(\d+) image files? (updated|unchanged)`)

// checkResult interprets exiftool's summary for a single-file write.
func checkResult(stdout, stderr string) error {
	for line := range strings.Lines(stderr) {
		if msg, ok := strings.CutPrefix(strings.TrimSpace(line), "Error:"); ok {
			return errors.New(strings.TrimSpace(msg))
		}
	}
	for _, m := range updatedRe.FindAllStringSubmatch(stdout, -1) {
		if n, _ := strconv.Atoi(m[1]); n > 0 {
			return nil
		}
	}
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = strings.TrimSpace(stdout)
	}
	if msg == "" {
		msg = "no files updated"
	}
	return errors.New(msg)
}
