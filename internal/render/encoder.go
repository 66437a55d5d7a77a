package render

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"
)

const (
	// tailLimit bounds the retained diagnostic output; only the trailing
	// slice is ever attached to a job record.
	tailLimit = 4096

	// progressCeiling is the highest percentage progress parsing may report;
	// 100 is reserved for confirmed success.
	progressCeiling = 95
)

// timeRe matches the HH:MM:SS.cc timestamp ffmpeg prints in its stats lines.
var timeRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// Supervisor runs the external encoder, streams its diagnostic output, and
// converts the embedded timestamps into percentage progress.
type Supervisor struct {
	binary string
}

func NewSupervisor() *Supervisor {
	return &Supervisor{binary: "ffmpeg"}
}

// Run spawns the encoder with argv, reporting progress as a percentage of
// totalSec through onProgress (nil disables reporting); each report carries
// the stats line that produced it. It returns the bounded tail of the
// diagnostic stream; on a non-zero exit or spawn failure the tail is also
// woven into the returned error.
func (s *Supervisor) Run(ctx context.Context, argv []string, totalSec float64, onProgress func(pct int, line string)) (string, error) {
	cmd := exec.CommandContext(ctx, s.binary, argv...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open encoder stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to spawn encoder: %w", err)
	}

	tail := newTailBuffer(tailLimit)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	// ffmpeg rewrites its stats line with \r; split on both \r and \n so
	// each rewrite arrives as its own line.
	scanner.Split(scanCRLines)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		tail.Write(line + "\n")

		if onProgress == nil || totalSec <= 0 {
			continue
		}
		if sec, ok := parseEncodeTime(line); ok {
			pct := int(sec / totalSec * 100)
			if pct > progressCeiling {
				pct = progressCeiling
			}
			if pct > 0 {
				onProgress(pct, line)
			}
		}
	}

	// A read error truncates the diagnostic stream; record it in the tail
	// and drain the pipe so Wait cannot block on a full buffer.
	if scanErr := scanner.Err(); scanErr != nil {
		tail.Write(fmt.Sprintf("stderr read error: %v\n", scanErr))
		io.Copy(io.Discard, stderr)
	}

	if err := cmd.Wait(); err != nil {
		return tail.String(), fmt.Errorf("encoder failed: %w: %s", err, tail.String())
	}

	return tail.String(), nil
}

// Probe runs ffprobe and returns its stdout; used to append verification info
// to the success log tail.
func Probe(ctx context.Context, filePath string) (string, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,duration",
		"-of", "default=nk=0:nw=1",
		filePath,
	)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("ffprobe failed: %w", err)
	}
	return string(bytes.TrimSpace(out)), nil
}

// parseEncodeTime extracts the current encode position in seconds from a
// stats line, if one is present.
func parseEncodeTime(line string) (float64, bool) {
	match := timeRe.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	hours, err1 := strconv.ParseFloat(match[1], 64)
	minutes, err2 := strconv.ParseFloat(match[2], 64)
	seconds, err3 := strconv.ParseFloat(match[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return hours*3600 + minutes*60 + seconds, true
}

// scanCRLines is a bufio.SplitFunc treating both \n and \r as terminators.
func scanCRLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the most-recent limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(s string) {
	t.buf = append(t.buf, s...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

// progressSink serializes progress updates for one job: values are forced
// monotonic, and store writes happen when progress increases or at least
// once per interval so the log tail stays fresh without flooding the store.
// Lines skipped by throttling are rewrites of the same encoder stats line,
// so dropping them loses nothing.
type progressSink struct {
	mu        sync.Mutex
	interval  time.Duration
	lastPct   int
	lastWrite time.Time
	write     func(pct int, tailDelta string)
}

func newProgressSink(interval time.Duration, write func(pct int, tailDelta string)) *progressSink {
	return &progressSink{interval: interval, write: write}
}

// Report offers a new progress observation with the diagnostic line that
// produced it. Regressions are ignored; flat progress is flushed at most
// once per interval.
func (p *progressSink) Report(pct int, line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pct < p.lastPct {
		pct = p.lastPct
	}
	if pct == p.lastPct && time.Since(p.lastWrite) < p.interval {
		return
	}

	p.lastPct = pct
	p.lastWrite = time.Now()
	p.write(pct, line+"\n")
}

// Flush forces a write at the given percentage (or the current one, if
// higher), bypassing the throttle.
func (p *progressSink) Flush(pct int, line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pct < p.lastPct {
		pct = p.lastPct
	}
	p.lastPct = pct
	p.lastWrite = time.Now()
	var delta string
	if line != "" {
		delta = line + "\n"
	}
	p.write(pct, delta)
}

// Current returns the highest percentage reported so far.
func (p *progressSink) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPct
}
