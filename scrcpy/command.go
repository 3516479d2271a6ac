package scrcpy

import (
	"github.com/MrChuw/scrcpy-manager/models"
)

// DefaultPath is the scrcpy binary looked up on PATH.
const DefaultPath = "scrcpy"

// PrimaryArgs builds the full-device mirror invocation: -s <serial> <flags...>.
func PrimaryArgs(serial string, flags []string) []string {
	args := make([]string, 0, len(flags)+2)
	args = append(args, "-s", serial)
	return append(args, flags...)
}

// AppArgs builds an app-scoped mirror on a new virtual display, titled with alias.
func AppArgs(serial string, flags []string, pkg, alias string) []string {
	args := PrimaryArgs(serial, flags)
	return append(args,
		"--new-display",
		"--start-app="+pkg,
		"--window-title="+alias,
	)
}

// WindowArgs picks the invocation shape for a window alias.
func WindowArgs(alias, target, serial string, flags []string) []string {
	if alias == models.MainAlias {
		return PrimaryArgs(serial, flags)
	}
	return AppArgs(serial, flags, target, alias)
}
