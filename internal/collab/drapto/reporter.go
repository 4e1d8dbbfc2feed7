package drapto

import (
	"fmt"

	draptolib "github.com/five82/drapto"
)

// libraryReporter adapts draptolib.Reporter's rich event set down to the
// slim ProgressUpdate this package exposes to stage handlers, which only
// need to know "how far along" and "what's happening", not drapto's full
// event vocabulary.
type libraryReporter struct {
	callback func(ProgressUpdate)
}

func newLibraryReporter(callback func(ProgressUpdate)) *libraryReporter {
	return &libraryReporter{callback: callback}
}

func (r *libraryReporter) Hardware(s draptolib.HardwareSummary) {}

func (r *libraryReporter) Initialization(s draptolib.InitializationSummary) {
	r.callback(ProgressUpdate{Stage: "initialization", Message: s.InputFile})
}

func (r *libraryReporter) StageProgress(s draptolib.StageProgress) {
	r.callback(ProgressUpdate{Percent: float64(s.Percent), Stage: s.Stage, Message: s.Message})
}

func (r *libraryReporter) CropResult(s draptolib.CropSummary) {}

func (r *libraryReporter) EncodingConfig(s draptolib.EncodingConfigSummary) {}

func (r *libraryReporter) EncodingStarted(totalFrames uint64) {
	r.callback(ProgressUpdate{Stage: "encoding", Message: fmt.Sprintf("%d frames", totalFrames)})
}

func (r *libraryReporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	r.callback(ProgressUpdate{Percent: float64(s.Percent), Stage: "encoding"})
}

func (r *libraryReporter) ValidationComplete(s draptolib.ValidationSummary) {}

func (r *libraryReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.callback(ProgressUpdate{Percent: 100, Stage: "complete", Message: s.OutputPath})
}

func (r *libraryReporter) Warning(message string) {
	r.callback(ProgressUpdate{Stage: "warning", Message: message})
}

func (r *libraryReporter) Error(e draptolib.ReporterError) {
	r.callback(ProgressUpdate{Stage: "error", Message: e.Message})
}

func (r *libraryReporter) OperationComplete(message string) {
	r.callback(ProgressUpdate{Stage: "complete", Message: message})
}

func (r *libraryReporter) BatchStarted(s draptolib.BatchStartInfo) {}

func (r *libraryReporter) FileProgress(s draptolib.FileProgressContext) {}

func (r *libraryReporter) BatchComplete(s draptolib.BatchSummary) {}

var _ draptolib.Reporter = (*libraryReporter)(nil)
