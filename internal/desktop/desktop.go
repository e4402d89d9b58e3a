// Package desktop opens files, images and links with the platform's default
// handler on behalf of the presentation layer.
package desktop

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/xamun-dev/xamun/internal/utils"
)

// Opener launches the default handler for a file path or URL.
type Opener func(target string) error

// Desktop resolves and opens user-selected resources.
type Desktop struct {
	workDir string
	open    Opener
	logger  *slog.Logger
}

// New creates a Desktop. Relative paths are resolved against workDir. A nil
// opener uses the platform's default handler.
func New(workDir string, opener Opener, logger *slog.Logger) *Desktop {
	if opener == nil {
		opener = openDefault
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Desktop{workDir: workDir, open: opener, logger: logger}
}

// OpenFile opens a file that must exist.
func (d *Desktop) OpenFile(path string) error {
	if path == "" {
		return errors.New("path is required")
	}
	abs := d.resolve(path)
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return d.open(abs)
}

// OpenImage opens an image given as a file path or a base64 data URI. Data
// URIs are written to a temporary file first.
func (d *Desktop) OpenImage(image string) error {
	if !strings.HasPrefix(image, "data:image/") {
		return d.OpenFile(image)
	}

	header, payload, ok := strings.Cut(image, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return errors.New("unsupported image data uri")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}

	ext := strings.TrimSuffix(strings.TrimPrefix(header, "data:image/"), ";base64")
	f, err := os.CreateTemp("", "xamun-image-*."+ext)
	if err != nil {
		return fmt.Errorf("creating temp image: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing temp image: %w", err)
	}
	return d.open(f.Name())
}

// OpenMention opens what a chat mention refers to: URLs in the browser,
// "/path" mentions as workspace files. Anything else is only logged.
func (d *Desktop) OpenMention(mention string) error {
	switch {
	case mention == "":
		return nil
	case strings.HasPrefix(mention, "http://"), strings.HasPrefix(mention, "https://"):
		return d.open(mention)
	case strings.HasPrefix(mention, "/"):
		return d.OpenFile(strings.TrimPrefix(mention, "/"))
	default:
		d.logger.Info("mention has no desktop target", "mention", mention)
		return nil
	}
}

// SelectImages returns the images the user picked. A headless host has no
// picker, so the selection is always empty.
func (d *Desktop) SelectImages() []string {
	return []string{}
}

func (d *Desktop) resolve(path string) string {
	return utils.ResolvePaths([]string{filepath.FromSlash(path)}, d.workDir)[0]
}

func openDefault(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "linux":
		cmd = exec.Command("xdg-open", target)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", target)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
