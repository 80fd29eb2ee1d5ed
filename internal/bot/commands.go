package bot

import "strings"

// ParseCommand splits a message into its command and arguments.
// "/analyze@marketfuse_bot NVDA" parses as ("/analyze", ["NVDA"]).
// Non-command text yields an empty command.
func ParseCommand(text string) (string, []string) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "/") {
		return "", nil
	}
	parts := strings.Fields(t)
	cmd := strings.ToLower(parts[0])
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd, parts[1:]
}
