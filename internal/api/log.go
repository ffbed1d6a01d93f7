package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"mikanlink/pkg/logging"
)

// Regex to capture key=value or key="value with spaces"
var logRegex = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

const (
	// maxParamLen drops attributes too long for a one-line status display.
	maxParamLen = 20

	defaultRecentLines = 20
)

// handleLatestLog returns the last captured log line.
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"log": formatLogLine(logging.Recent.LastLine()),
	}); err != nil {
		slog.Error("Failed to write log response", "error", err)
	}
}

// handleRecentLog returns up to n condensed lines, oldest first.
func handleRecentLog(w http.ResponseWriter, r *http.Request) {
	n := defaultRecentLines
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = v
	}

	raw := logging.Recent.Last(n)
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = formatLogLine(l)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]string{"lines": lines}); err != nil {
		slog.Error("Failed to write log response", "error", err)
	}
}

// formatLogLine condenses a slog text line to
// "HH:MM:SS [component] msg (key=value, ...)". Attributes are sorted and long
// values dropped.
func formatLogLine(raw string) string {
	matches := logRegex.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return raw
	}

	var msg, timeStr, component string
	var params []string

	for _, m := range matches {
		key := m[1]
		val := m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch key {
		case "time":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				timeStr = t.Format("15:04:05")
			}
		case "level", "source":
		case "msg":
			msg = val
		case "component":
			component = val
		default:
			if len(val) <= maxParamLen {
				params = append(params, fmt.Sprintf("%s=%s", key, val))
			}
		}
	}

	if msg == "" {
		return raw
	}

	sort.Strings(params)

	output := msg
	if component != "" {
		output = fmt.Sprintf("[%s] %s", component, output)
	}
	if timeStr != "" {
		output = fmt.Sprintf("%s %s", timeStr, output)
	}
	if len(params) > 0 {
		return fmt.Sprintf("%s (%s)", output, strings.Join(params, ", "))
	}
	return output
}
