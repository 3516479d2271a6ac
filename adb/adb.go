package adb

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/MrChuw/scrcpy-manager/models"
)

// DefaultRefusalKeywords mark a failed "adb connect" in the tool's output.
var DefaultRefusalKeywords = []string{"cannot", "failed"}

// UnknownProperty is recorded when a property fetch fails.
const UnknownProperty = "Unknown"

// propertyKeys lists the device record labels in their persisted order.
var propertyKeys = []struct {
	Label string
	Prop  string
}{
	{"Manufacturer", "ro.product.manufacturer"},
	{"Android Version", "ro.build.version.release"},
	{"SDK Version", "ro.build.version.sdk"},
	{"Product Name", "ro.product.name"},
	{"Model", "ro.product.model"},
}

// PropertyLabels returns the device record labels in order.
func PropertyLabels() []string {
	labels := make([]string, len(propertyKeys))
	for i, k := range propertyKeys {
		labels[i] = k.Label
	}
	return labels
}

// ADBClient wraps adb command execution. It holds no state beyond its configuration.
type ADBClient struct {
	ADBPath         string
	Port            int
	RefusalKeywords []string
	Runner          Runner
	Logger          zerolog.Logger
}

// NewADBClient creates a client for adb on PATH using the given network port.
func NewADBClient(port int, logger zerolog.Logger) *ADBClient {
	return &ADBClient{
		ADBPath:         "adb",
		Port:            port,
		RefusalKeywords: DefaultRefusalKeywords,
		Runner:          ExecRunner{},
		Logger:          logger.With().Str("component", "adb").Logger(),
	}
}

// LookPath verifies the adb binary can be found.
func (c *ADBClient) LookPath() error {
	if _, err := exec.LookPath(c.ADBPath); err != nil {
		return fmt.Errorf("adb not found (install it or add it to PATH): %w", err)
	}
	return nil
}

// run executes adb. When checked is set, a nonzero exit is an error; otherwise only
// a failure to execute adb at all is reported.
func (c *ADBClient) run(ctx context.Context, checked bool, args ...string) (string, error) {
	stdout, stderr, code, err := c.Runner.Run(ctx, c.ADBPath, args...)
	out := strings.TrimSpace(string(stdout))
	c.Logger.Debug().Strs("args", args).Int("exit", code).Str("stdout", out).Msg("adb")
	if err != nil && (checked || code == ExitNotFound || code < 0 || ctx.Err() != nil) {
		return out, &CommandError{
			Args:     args,
			ExitCode: code,
			Stderr:   strings.TrimSpace(string(stderr)),
			Err:      err,
		}
	}
	return out, nil
}

// ListDevices returns online and offline devices from "adb devices -l".
func (c *ADBClient) ListDevices(ctx context.Context) ([]models.Device, error) {
	out, err := c.run(ctx, true, "devices", "-l")
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return parseDeviceList(out), nil
}

// parseDeviceList parses the output of 'adb devices -l'
func parseDeviceList(output string) []models.Device {
	var devices []models.Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		// Expected format: <serial> <state> [key:value ...]
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		device := models.Device{Serial: parts[0], State: parts[1]}
		for _, part := range parts[2:] {
			key, value, ok := strings.Cut(part, ":")
			if !ok {
				continue
			}
			switch key {
			case "model":
				device.Model = strings.ReplaceAll(value, "_", " ")
			case "product":
				device.Product = value
			case "device":
				device.DeviceName = value
			case "transport_id":
				device.TransportID = value
			default:
				if device.Fields == nil {
					device.Fields = make(map[string]string)
				}
				device.Fields[key] = value
			}
		}
		devices = append(devices, device)
	}
	return devices
}

// Connect issues "adb connect". A response containing a refusal keyword is
// reported as not connected, with the raw output for diagnostics.
func (c *ADBClient) Connect(ctx context.Context, addr string) (bool, string, error) {
	out, err := c.run(ctx, false, "connect", addr)
	if err != nil {
		return false, out, fmt.Errorf("adb connect %s: %w", addr, err)
	}
	lower := strings.ToLower(out)
	for _, kw := range c.RefusalKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return false, out, nil
		}
	}
	return true, out, nil
}

// Disconnect drops every network transport session.
func (c *ADBClient) Disconnect(ctx context.Context) error {
	_, err := c.run(ctx, false, "disconnect")
	return err
}

// KillServer stops the adb daemon; the next command restarts it.
func (c *ADBClient) KillServer(ctx context.Context) error {
	_, err := c.run(ctx, false, "kill-server")
	return err
}

// USB asks adbd on the device to restart in USB mode.
func (c *ADBClient) USB(ctx context.Context) error {
	_, err := c.run(ctx, false, "usb")
	return err
}

// TCPIP switches the device to listen for network transport on the configured port.
func (c *ADBClient) TCPIP(ctx context.Context, serial string) error {
	args := []string{"tcpip", fmt.Sprintf("%d", c.Port)}
	if serial != "" {
		args = append([]string{"-s", serial}, args...)
	}
	if _, err := c.run(ctx, true, args...); err != nil {
		return fmt.Errorf("adb tcpip: %w", err)
	}
	return nil
}

// Shell runs a remote shell command and returns its trimmed standard output.
func (c *ADBClient) Shell(ctx context.Context, serial, command string) (string, error) {
	out, err := c.run(ctx, true, "-s", serial, "shell", command)
	if err != nil {
		return "", fmt.Errorf("shell %q on %s: %w", command, serial, err)
	}
	return out, nil
}

// GetProperty reads one system property from the device.
func (c *ADBClient) GetProperty(ctx context.Context, serial, property string) (string, error) {
	return c.Shell(ctx, serial, "getprop "+property)
}

// Properties collects the device record properties. A failed fetch degrades to
// UnknownProperty instead of aborting.
func (c *ADBClient) Properties(ctx context.Context, serial string) []models.Property {
	props := make([]models.Property, 0, len(propertyKeys))
	for _, k := range propertyKeys {
		value, err := c.GetProperty(ctx, serial, k.Prop)
		if err != nil || value == "" {
			if err != nil {
				c.Logger.Warn().Err(err).Str("property", k.Prop).Msg("Property fetch failed")
			}
			value = UnknownProperty
		}
		props = append(props, models.Property{Label: k.Label, Value: value})
	}
	return props
}
