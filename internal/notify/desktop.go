// Package notify signals the user outside the conversation: desktop
// notifications for reminders and, in voice builds, a listening cue.
package notify

import (
	"context"
	"fmt"
	log "log/slog"
	"os/exec"
	"time"
)

const sendTimeout = 5 * time.Second

// Desktop posts notifications through notify-send. A Desktop without the
// binary does nothing.
type Desktop struct {
	bin     string
	appName string
}

func NewDesktop(appName string) *Desktop {
	bin, err := exec.LookPath("notify-send")
	if err != nil {
		log.Debug("Desktop notifications unavailable", "err", err)
		bin = ""
	}
	return &Desktop{bin: bin, appName: appName}
}

func (d *Desktop) Available() bool {
	return d.bin != ""
}

func (d *Desktop) Notify(ctx context.Context, title, body string) error {
	if !d.Available() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, d.bin, "--app-name="+d.appName, title, body).CombinedOutput()
	if err != nil {
		return fmt.Errorf("notify-send: %w: %s", err, out)
	}
	return nil
}
