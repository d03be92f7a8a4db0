package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/heyjunin/HLSdrop/pkg/logger"
	"github.com/schollz/progressbar/v3"
)

// Stage names one step of the conversion state machine.
type Stage string

const (
	StageIdle              Stage = "idle"
	StageLoadingEngine     Stage = "loading_engine"
	StageStaging           Stage = "staging"
	StageTranscoding       Stage = "transcoding"
	StageUploadingSegments Stage = "uploading_segments"
	StageRewriting         Stage = "rewriting_playlist"
	StageUploadingPlaylist Stage = "uploading_playlist"
	StageComplete          Stage = "complete"
	StageFailed            Stage = "failed"
)

// Terminal reports whether no further transitions are expected from s.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// LogLine is one entry of the conversion log, timestamped when it was appended.
type LogLine struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String renders the line the way the log viewer shows it.
func (l LogLine) String() string {
	return fmt.Sprintf("[%s] %s", l.Time.Format("15:04:05"), l.Message)
}

// State is an immutable view of one conversion attempt.
// Values returned by a Reporter are copies and never change afterwards.
type State struct {
	ConversionID string    `json:"conversion_id,omitempty"`
	Stage        Stage     `json:"stage"`
	Percent      int       `json:"percent"`
	Status       string    `json:"status"`
	Logs         []LogLine `json:"logs"`
	Error        string    `json:"error,omitempty"`
	ResultURL    string    `json:"result_url,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s State) clone() State {
	c := s
	c.Logs = make([]LogLine, len(s.Logs))
	copy(c.Logs, s.Logs)
	return c
}

// Reporter accumulates progress and log lines for the active conversion.
type Reporter interface {
	// Reset discards everything from a previous attempt and starts a new one.
	Reset(conversionID string)
	// Update moves the attempt to stage with the given percentage and status text.
	Update(percent int, stage Stage, status string)
	// Log appends a timestamped line.
	Log(message string)
	// Fail marks the attempt failed. Progress keeps its last value.
	Fail(message string)
	// Complete marks the attempt finished with the final URL and 100%.
	Complete(resultURL string)
	// Snapshot returns a copy of the current state.
	Snapshot() State
}

// reporterOptions holds configuration for the DefaultReporter.
type reporterOptions struct {
	throttle           time.Duration
	progressFilePath   string
	progressFileFormat string
	description        string
	console            io.Writer
	logWriter          io.Writer
	now                func() time.Time
}

// ReporterOption is a function type used to configure a DefaultReporter.
type ReporterOption func(*reporterOptions)

// WithThrottle sets the minimum interval between non-terminal snapshots sent to subscribers.
// Log lines and terminal states are always delivered.
func WithThrottle(duration time.Duration) ReporterOption {
	return func(opts *reporterOptions) {
		opts.throttle = duration
	}
}

// WithProgressFile sets the file path where the current progress is written on every change.
// If the path is empty (default), no file will be written.
func WithProgressFile(path string) ReporterOption {
	return func(opts *reporterOptions) {
		opts.progressFilePath = path
	}
}

// WithProgressFileFormat sets the format for the progress file ("text" or "json").
// "text" writes only the percentage; "json" writes the whole State.
func WithProgressFileFormat(format string) ReporterOption {
	return func(opts *reporterOptions) {
		if format == "json" || format == "text" {
			opts.progressFileFormat = format
		} else {
			logger.Warn("Invalid progress file format specified, defaulting to 'text'", "progress", map[string]interface{}{
				"format": format,
			})
			opts.progressFileFormat = "text"
		}
	}
}

// WithDescription sets the initial description text for the console progress bar.
func WithDescription(desc string) ReporterOption {
	return func(opts *reporterOptions) {
		opts.description = desc
	}
}

// WithConsole renders a progress bar on w. Without it no bar is drawn.
func WithConsole(w io.Writer) ReporterOption {
	return func(opts *reporterOptions) {
		opts.console = w
	}
}

// WithLogWriter echoes every log line, formatted, to w.
func WithLogWriter(w io.Writer) ReporterOption {
	return func(opts *reporterOptions) {
		opts.logWriter = w
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) ReporterOption {
	return func(opts *reporterOptions) {
		opts.now = now
	}
}

// DefaultReporter is the default implementation of the Reporter interface.
// It optionally draws a github.com/schollz/progressbar/v3 bar, writes a
// progress file, and fans snapshots out to subscribers.
type DefaultReporter struct {
	opts        reporterOptions
	state       State
	bar         *progressbar.ProgressBar
	subscribers map[int]chan State
	nextSubID   int
	lastSend    time.Time
	mu          sync.Mutex
}

// NewReporter creates a new DefaultReporter in the idle state.
func NewReporter(opts ...ReporterOption) *DefaultReporter {
	options := reporterOptions{
		description:        "Converting...",
		progressFileFormat: "text",
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &DefaultReporter{
		opts: options,
		state: State{
			Stage:     StageIdle,
			Logs:      []LogLine{},
			UpdatedAt: options.now(),
		},
		subscribers: make(map[int]chan State),
	}
}

// Reset clears logs, error, result and progress back to zero.
func (r *DefaultReporter) Reset(conversionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = State{
		ConversionID: conversionID,
		Stage:        StageIdle,
		Logs:         []LogLine{},
		UpdatedAt:    r.opts.now(),
	}

	if r.opts.console != nil {
		r.bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription(r.opts.description),
			progressbar.OptionSetWriter(r.opts.console),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	r.publishLocked(true)
}

// Update sets the stage, percentage (clamped to 0..100) and status text.
func (r *DefaultReporter) Update(percent int, stage Stage, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.state.Percent = percent
	r.state.Stage = stage
	if status != "" {
		r.state.Status = status
	}
	r.state.UpdatedAt = r.opts.now()

	if r.bar != nil {
		r.bar.Describe(r.state.Status)
		_ = r.bar.Set(percent)
	}

	r.publishLocked(false)
}

// Log appends a line stamped with the current time.
func (r *DefaultReporter) Log(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := LogLine{Time: r.opts.now(), Message: message}
	r.state.Logs = append(r.state.Logs, line)
	r.state.UpdatedAt = line.Time

	if r.opts.logWriter != nil {
		if r.bar != nil {
			_ = r.bar.Clear()
		}
		fmt.Fprintln(r.opts.logWriter, line.String())
	}

	r.publishLocked(true)
}

// Fail records the error message. The progress value is left where it was.
func (r *DefaultReporter) Fail(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Stage = StageFailed
	r.state.Status = "Error during conversion!"
	r.state.Error = message
	r.state.UpdatedAt = r.opts.now()
	r.bar = nil

	r.publishLocked(true)
}

// Complete records the final URL and sets progress to 100.
func (r *DefaultReporter) Complete(resultURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Stage = StageComplete
	r.state.Percent = 100
	r.state.Status = "Conversion complete!"
	r.state.ResultURL = resultURL
	r.state.UpdatedAt = r.opts.now()

	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}

	r.publishLocked(true)
}

// Snapshot returns a copy of the current state.
func (r *DefaultReporter) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Subscribe returns a channel receiving a snapshot after every change, starting
// with the current one. Slow consumers miss intermediate snapshots rather than
// block the pipeline, but the latest state is always queued. The returned function unsubscribes and closes the channel.
func (r *DefaultReporter) Subscribe() (<-chan State, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSubID
	r.nextSubID++
	ch := make(chan State, 16)
	ch <- r.state.clone()
	r.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if c, ok := r.subscribers[id]; ok {
				delete(r.subscribers, id)
				close(c)
			}
		})
	}
}

// JSON returns the current state as a JSON string.
func (r *DefaultReporter) JSON() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.Marshal(r.state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal progress state: %w", err)
	}
	return string(data), nil
}

// publishLocked fans the state out and rewrites the progress file.
// Requires lock to be held by caller.
func (r *DefaultReporter) publishLocked(force bool) {
	r.writeProgressFileLocked()

	now := r.opts.now()
	if !force && !r.state.Stage.Terminal() && now.Sub(r.lastSend) < r.opts.throttle {
		return
	}
	r.lastSend = now

	for _, ch := range r.subscribers {
		deliverLatest(ch, r.state.clone())
	}
}

// deliverLatest sends s, evicting the oldest queued snapshot when ch is full so
// the newest state always arrives.
func deliverLatest(ch chan State, s State) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// writeProgressFileLocked writes the current progress to the configured file,
// respecting the specified format ("text" or "json").
// Requires lock to be held by caller.
func (r *DefaultReporter) writeProgressFileLocked() {
	if r.opts.progressFilePath == "" {
		return
	}

	var content []byte
	var err error

	switch r.opts.progressFileFormat {
	case "json":
		content, err = json.MarshalIndent(r.state, "", "  ")
		if err != nil {
			logger.Warn("Failed to marshal progress state to JSON", "progress", map[string]interface{}{
				"path":  r.opts.progressFilePath,
				"error": err.Error(),
			})
			return
		}
	default:
		content = []byte(fmt.Sprintf("%d", r.state.Percent))
	}

	if err := os.WriteFile(r.opts.progressFilePath, content, 0644); err != nil {
		logger.Warn("Failed to write progress file", "progress", map[string]interface{}{
			"path":   r.opts.progressFilePath,
			"format": r.opts.progressFileFormat,
			"error":  err.Error(),
		})
	}
}
