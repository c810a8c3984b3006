package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/moodlog/internal/config"
	"github.com/andresmejia3/moodlog/internal/emotion"
	"github.com/andresmejia3/moodlog/internal/pipeline"
	"github.com/andresmejia3/moodlog/internal/store"
	"github.com/andresmejia3/moodlog/internal/types"
	"github.com/andresmejia3/moodlog/internal/utils"
	"github.com/andresmejia3/moodlog/internal/vision"
	"github.com/andresmejia3/moodlog/internal/workbook"
	"github.com/andresmejia3/moodlog/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// Options holds the configuration of a capture session
type Options struct {
	Source      string
	Output      string
	Cascade     string
	Backend     string
	Model       string
	ModelConfig string
	Headless    bool
}

const (
	backendPython = "python"
	backendDNN    = "dnn"
)

var runOpts Options

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture video, classify emotions and log them to a workbook",
	Long: `Opens the camera (or a video file), detects faces, classifies the dominant emotion of each face
and writes one sample every 2 seconds to an .xlsx workbook. Press 'q' in the preview window
or Ctrl+C to stop; the workbook is saved on every exit path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCapture(cmd.Context(), mergeOptions(runOpts, cfg))
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.Source, "source", "s", "", "Camera index or video file/URL (default \"0\")")
	runCmd.Flags().StringVarP(&runOpts.Output, "output", "o", "", "Workbook path (default \""+config.DefaultOutput+"\")")
	runCmd.Flags().StringVarP(&runOpts.Cascade, "cascade", "c", "", "Path to "+vision.CascadeFile+" (searched in OpenCV install dirs when empty)")
	runCmd.Flags().StringVarP(&runOpts.Backend, "backend", "b", "", "Emotion model backend: python, dnn (default \"python\")")
	runCmd.Flags().StringVarP(&runOpts.Model, "model", "m", "", "Exported emotion model for the dnn backend (.onnx, .pb)")
	runCmd.Flags().StringVar(&runOpts.ModelConfig, "model-config", "", "Optional graph/config file for the dnn backend")
	runCmd.Flags().BoolVar(&runOpts.Headless, "headless", false, "Run without a preview window (stop with Ctrl+C)")

	rootCmd.AddCommand(runCmd)
}

// mergeOptions fills every option left empty on the command line from the environment.
func mergeOptions(opts Options, c *config.Config) Options {
	if c == nil {
		return opts
	}
	if opts.Source == "" {
		opts.Source = c.Source
	}
	if opts.Output == "" {
		opts.Output = c.Output
	}
	if opts.Cascade == "" {
		opts.Cascade = c.Cascade
	}
	if opts.Backend == "" {
		opts.Backend = c.Backend
	}
	if opts.Model == "" {
		opts.Model = c.Model
	}
	return opts
}

// validateRunOptions ensures all CLI arguments are valid before opening any device.
func validateRunOptions(opts Options) error {
	if opts.Source == "" {
		return fmt.Errorf("no video source configured")
	}
	switch opts.Backend {
	case backendPython:
	case backendDNN:
		if opts.Model == "" {
			return fmt.Errorf("the dnn backend needs --model")
		}
		if _, err := os.Stat(opts.Model); err != nil {
			return fmt.Errorf("unable to access model: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend %q (use %s or %s)", opts.Backend, backendPython, backendDNN)
	}
	if err := utils.EnsureWritable(opts.Output); err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}
	return nil
}

// archiveTee forwards rows to the workbook and keeps a copy for the session archive.
type archiveTee struct {
	next pipeline.RowWriter
	rows []types.LogRow
}

func (a *archiveTee) Append(r types.LogRow) error {
	if err := a.next.Append(r); err != nil {
		return err
	}
	a.rows = append(a.rows, r)
	return nil
}

// classifierCloser is an emotion.Classifier owning native or process resources.
type classifierCloser interface {
	emotion.Classifier
	Close() error
}

func newClassifier(ctx context.Context, opts Options) (classifierCloser, *utils.SafeCommand, error) {
	if opts.Backend == backendDNN {
		c, err := vision.NewNetClassifier(opts.Model, opts.ModelConfig)
		return c, nil, err
	}
	w, err := worker.NewPythonWorker(ctx, 0, worker.Config{
		Python:      cfg.Python,
		Script:      cfg.WorkerScript,
		ReadTimeout: cfg.WorkerTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return w, w.Cmd, nil
}

// runCapture orchestrates a session: devices, model, capture loop, single flush, archive.
func runCapture(ctx context.Context, opts Options) error {
	if err := validateRunOptions(opts); err != nil {
		utils.ShowError("Invalid options", err, nil)
		return err
	}

	// 1. Collaborators
	src, err := vision.OpenSource(opts.Source)
	if err != nil {
		utils.ShowError("Failed to open video source", err, nil)
		return err
	}
	defer src.Close()

	locator, err := vision.NewCascadeLocator(opts.Cascade)
	if err != nil {
		utils.ShowError("Failed to load face detector", err, nil)
		return err
	}
	defer locator.Close()

	fmt.Fprintf(os.Stderr, "🚀 Starting emotion model (%s backend)...\n", opts.Backend)
	classifier, py, err := newClassifier(ctx, opts)
	if err != nil {
		utils.ShowError("Failed to start emotion model", err, py)
		return err
	}
	defer classifier.Close()

	wb, err := workbook.New(opts.Output)
	if err != nil {
		utils.ShowError("Failed to create workbook", err, nil)
		return err
	}
	defer wb.Close()
	rows := &archiveTee{next: wb}

	p := &pipeline.Pipeline{
		Source:     src,
		Locator:    locator,
		Classifier: classifier,
		Rows:       rows,
		Logger:     logger,
	}

	if !opts.Headless {
		win := vision.NewWindow()
		defer win.Close()
		p.Display = win
	}

	// 2. Capture loop
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("🎭 Capturing"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
	)
	p.OnFrame = func(r pipeline.Result) {
		bar.Add(1)
		if r.Accepted > 0 {
			bar.Describe(fmt.Sprintf("🎭 Capturing (%d logged)", r.Accepted))
		}
	}

	fmt.Fprintf(os.Stderr, "📹 Reading %s. Press 'q' in the window or Ctrl+C to stop.\n", src.Name())
	started := time.Now()
	res, runErr := pipeline.RunAndFlush(ctx, p, wb)
	ended := time.Now()
	bar.Finish()

	if runErr != nil {
		utils.ShowError("Capture stopped", runErr, py)
	}
	printRunSummary(res, wb, ended.Sub(started))

	// 3. Optional archive. The signal context may be cancelled by now.
	if err := archive(context.Background(), store.Session{
		Source:    src.Name(),
		Output:    opts.Output,
		StartedAt: started,
		EndedAt:   ended,
	}, rows.rows); err != nil {
		utils.ShowError("Failed to archive session", err, nil)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func archive(ctx context.Context, sess store.Session, rows []types.LogRow) error {
	db, err := openStore(ctx, false)
	if err != nil || db == nil {
		return err
	}
	defer db.Close(ctx)

	id, err := db.ArchiveSession(ctx, sess, rows)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "🗄️  Archived as session %d\n", id)
	return nil
}

func printRunSummary(res pipeline.Result, wb *workbook.Workbook, elapsed time.Duration) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "📊 SESSION SUMMARY (%s)\n", res.Reason)
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "⏱️  Duration:          %s\n", fmtDuration(elapsed))
	fmt.Fprintf(os.Stderr, "🖼️  Frames:            %d (%d empty reads)\n", res.Frames, res.EmptyReads)
	fmt.Fprintf(os.Stderr, "👁️  Face Detections:   %d\n", res.Faces)
	fmt.Fprintf(os.Stderr, "📝 Rows Logged:       %d (%d samples throttled)\n", res.Accepted, res.Rejected)
	fmt.Fprintf(os.Stderr, "💾 Workbook:          %s\n", wb.Path())
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

func fmtDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
