package service

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrChuw/scrcpy-manager/models"
)

// DeviceRecordFileName is the device record file inside the config directory.
const DeviceRecordFileName = "last_working_device.conf"

// DeviceRegistry persists the last successfully used device as a small text file:
// the address on the first line, then one "Label: value" line per property.
type DeviceRegistry struct {
	path string
}

func NewDeviceRegistry(dir string) *DeviceRegistry {
	return &DeviceRegistry{path: filepath.Join(dir, DeviceRecordFileName)}
}

func (r *DeviceRegistry) Path() string {
	return r.path
}

// Load returns the cached record. A missing file yields a zero record and no error;
// an unparsable file yields a zero record and an error describing the problem.
// Either way callers treat the result as "no cached device".
func (r *DeviceRegistry) Load() (models.DeviceRecord, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.DeviceRecord{}, nil
	}
	if err != nil {
		return models.DeviceRecord{}, fmt.Errorf("read device record: %w", err)
	}
	rec, err := parseDeviceRecord(data)
	if err != nil {
		return models.DeviceRecord{}, fmt.Errorf("device record %s: %w", r.path, err)
	}
	return rec, nil
}

func parseDeviceRecord(data []byte) (models.DeviceRecord, error) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return models.DeviceRecord{}, err
	}
	if len(lines) == 0 {
		return models.DeviceRecord{}, errors.New("empty file")
	}

	addr, err := models.ParseAddress(lines[0])
	if err != nil {
		return models.DeviceRecord{}, err
	}
	rec := models.DeviceRecord{Address: addr}
	for _, line := range lines[1:] {
		label, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		rec.Properties = append(rec.Properties, models.Property{Label: label, Value: value})
	}
	return rec, nil
}

// Save replaces the record file atomically.
func (r *DeviceRegistry) Save(rec models.DeviceRecord) error {
	if rec.Address.IsZero() {
		return errors.New("save device record: empty address")
	}
	var buf bytes.Buffer
	buf.WriteString(rec.Address.String())
	buf.WriteByte('\n')
	for _, p := range rec.Properties {
		fmt.Fprintf(&buf, "%s: %s\n", p.Label, singleLine(p.Value))
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("save device record: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".device-*.tmp")
	if err != nil {
		return fmt.Errorf("save device record: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("save device record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save device record: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("save device record: %w", err)
	}
	return nil
}

func singleLine(s string) string {
	s = strings.TrimSpace(s)
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
