// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Log is the shared application logger. Commands reconfigure it once at
// startup; library code only writes through it.
var Log = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "chatscope",
})

// Setup points the logger at w and applies the debug level when requested.
func Setup(w io.Writer, debug bool) {
	Log.SetOutput(w)
	if debug {
		Log.SetLevel(log.DebugLevel)
	} else {
		Log.SetLevel(log.InfoLevel)
	}
}
