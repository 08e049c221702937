package app

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""

	readBuildInfo = debug.ReadBuildInfo
)

// BuildVersion prefers the ldflags version and falls back to the module
// version recorded by `go install`.
func BuildVersion() string {
	version := strings.TrimSpace(Version)
	if version != "" && version != "dev" {
		return version
	}
	if info, ok := readBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}

// BuildRevision returns the short VCS revision stamped by the toolchain.
func BuildRevision() string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	rev, dirty := "", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
}

func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	if raw == "" {
		return ""
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.Format(time.DateOnly)
	}
	if len(raw) >= len(time.DateOnly) {
		date := raw[:len(time.DateOnly)]
		if _, err := time.Parse(time.DateOnly, date); err == nil {
			return date
		}
	}
	return raw
}

// BuildString renders "version (date, revision)" omitting unknown parts.
func BuildString() string {
	var extra []string
	if d := BuildDateYMD(); d != "" {
		extra = append(extra, d)
	}
	if r := BuildRevision(); r != "" {
		extra = append(extra, r)
	}
	if len(extra) == 0 {
		return BuildVersion()
	}
	return fmt.Sprintf("%s (%s)", BuildVersion(), strings.Join(extra, ", "))
}
