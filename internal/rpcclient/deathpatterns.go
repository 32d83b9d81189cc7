package rpcclient

import "regexp"

// deathPattern maps a stderr substring pattern to the host-death tag spec.md
// §4.1/§7 surfaces as host_dead(tag). Matching is case-insensitive and
// checked in order; the first match wins.
type deathPattern struct {
	re  *regexp.Regexp
	tag string
}

var deathPatterns = []deathPattern{
	{regexp.MustCompile(`(?i)can't find socket`), "socket_not_found"},
	{regexp.MustCompile(`(?i)no such file or directory`), "socket_missing"},
	{regexp.MustCompile(`(?i)connection refused`), "connection_refused"},
	{regexp.MustCompile(`(?i)connection reset`), "connection_reset"},
	{regexp.MustCompile(`(?i)server did not respond`), "server_unresponsive"},
	{regexp.MustCompile(`(?i)socket.*not available`), "socket_unavailable"},
}

// matchDeathTag returns the death tag for the first pattern matching stderr,
// and ok=false if the stderr text doesn't look like a dead-host signature
// (in which case the failure classifies as a plain exception instead).
func matchDeathTag(stderr string) (tag string, ok bool) {
	for _, p := range deathPatterns {
		if p.re.MatchString(stderr) {
			return p.tag, true
		}
	}
	return "", false
}
