// Package output persists the nameserver configuration and zone files.
//
// Every file is rendered to memory first and replaced through a rename, so
// readers only ever see a complete previous or complete new version. Files
// whose content did not change are left untouched to avoid reloads.
package output

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/curtisra-gif/simple-gslb/internal/model"
)

type Options struct {
	ConfigPath string
	ZoneDir    string
	// Validate parses rendered zones before they are written.
	Validate bool
}

// WriteResult describes one file write.
type WriteResult struct {
	Path    string
	Changed bool
	Err     error
}

type Writer struct {
	log        *zap.Logger
	renderer   Renderer
	configPath string
	zoneDir    string
	validate   bool
}

func NewWriter(log *zap.Logger, renderer Renderer, opts Options) *Writer {
	return &Writer{
		log:        log,
		renderer:   renderer,
		configPath: opts.ConfigPath,
		zoneDir:    opts.ZoneDir,
		validate:   opts.Validate,
	}
}

// ZoneFileName is the file name used for a domain's view.
func ZoneFileName(domain, view string) string {
	return "db." + domain + "." + view
}

func (w *Writer) ZoneDir() string {
	return w.zoneDir
}

func (w *Writer) ConfigPath() string {
	return w.configPath
}

// Prepare creates the output directories.
func (w *Writer) Prepare() error {
	for _, dir := range []string{w.zoneDir, filepath.Dir(w.configPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// WriteConfig renders the nameserver configuration and writes it only when
// it differs from what is on disk.
func (w *Writer) WriteConfig(data ConfigData) WriteResult {
	res := WriteResult{Path: w.configPath}
	if data.ZoneDir == "" {
		data.ZoneDir = w.zoneDir
	}

	var buf bytes.Buffer
	if err := w.renderer.RenderConfig(&buf, data); err != nil {
		res.Err = fmt.Errorf("rendering config: %w", err)
		return res
	}

	res.Changed, res.Err = writeIfChanged(w.configPath, buf.Bytes())
	if res.Changed {
		w.log.Info("nameserver config updated", zap.String("path", w.configPath))
	}
	return res
}

// WriteZone renders and atomically writes the zone file of one view.
func (w *Writer) WriteZone(data ZoneData, view string) WriteResult {
	name := ZoneFileName(data.Domain, view)
	res := WriteResult{Path: filepath.Join(w.zoneDir, name)}

	if strings.ContainsAny(name, "/\\\x00") {
		res.Err = fmt.Errorf("invalid zone file name %q", name)
		return res
	}

	if err := checkAliases(data.Records); err != nil {
		res.Err = err
		return res
	}

	var buf bytes.Buffer
	if err := w.renderer.RenderZone(&buf, data); err != nil {
		res.Err = fmt.Errorf("rendering zone: %w", err)
		return res
	}

	if w.validate {
		if err := validateZone(buf.Bytes(), data.Domain, name); err != nil {
			res.Err = fmt.Errorf("validating zone: %w", err)
			return res
		}
	}

	res.Changed, res.Err = writeIfChanged(res.Path, buf.Bytes())
	return res
}

// checkAliases rejects a CNAME that shares its owner name with any other
// answer, including copies of itself from weight replication.
func checkAliases(records model.ZoneView) error {
	for name, targets := range records {
		if len(targets) < 2 {
			continue
		}
		for _, t := range targets {
			if rrType(t.Address) == "CNAME" {
				return fmt.Errorf("record %s: alias %s cannot share its name with other answers", name, t.Address)
			}
		}
	}
	return nil
}

func validateZone(content []byte, origin, file string) error {
	zp := dns.NewZoneParser(bytes.NewReader(content), dns.Fqdn(origin), file)
	for _, ok := zp.Next(); ok; _, ok = zp.Next() {
	}
	return zp.Err()
}

func writeIfChanged(path string, content []byte) (bool, error) {
	current, err := os.ReadFile(path)
	switch {
	case err == nil:
		if bytes.Equal(current, content) {
			return false, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := writeAtomic(path, content); err != nil {
		return false, err
	}
	return true, nil
}

// writeAtomic writes content next to path and renames it into place.
func writeAtomic(path string, content []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(content); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err = f.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}
