// Package classify assigns a risk tier to a proposed action by pattern
// matching its parameter values against destructive and write keyword
// sets. Classification is a pure function of the request: no I/O, no
// clock, no shared state.
package classify

import (
	"fmt"
	"regexp"

	"flowgate-hq/flowgate/pkg/action"
)

// destructivePatterns indicate irreversible operations: root deletion,
// filesystem formatting, raw disk writes, host power state changes.
// Checked before the write set; a command matching both is destructive.
var destructivePatterns = []string{
	`rm\s+-[a-z]*r[a-z]*f[a-z]*\s+/(\s|$)`, // delete from the filesystem root
	`mkfs`,
	`dd\s+if=`,
	`shutdown`,
	`reboot`,
	`\bhalt\b`,
	`init\s+0`,
	`init\s+6`,
	`systemctl\s+poweroff`,
	`systemctl\s+reboot`,
	`>\s*/dev/sd[a-z]`,
	`wipefs`,
	`fdisk\b.*-w`,
}

// writePatterns indicate reversible state changes: file removal and
// movement, redirection, service stops, forceful process kills.
var writePatterns = []string{
	`\brm\s+`,
	`\bmv\s+`,
	`\bcp\s+.*\s+/`,
	`>`,
	`systemctl\s+stop`,
	`systemctl\s+disable`,
	`kill\s+-9`,
	`\bpkill\b`,
	`\bchmod\b`,
	`\bchown\b`,
	`service\s+\w+\s+stop`,
	`docker\s+rm`,
	`docker\s+stop`,
	`kubectl\s+delete`,
	`sed\s+-i`,
	`\btruncate\b`,
}

// Classifier maps action requests to risk tiers. The zero value is not
// usable; construct with New.
type Classifier struct {
	destructive []*regexp.Regexp
	write       []*regexp.Regexp
}

// New builds a classifier from the builtin pattern sets plus any extra
// destructive patterns supplied by configuration. Extra patterns are
// treated as destructive: operators add patterns to tighten the gate,
// never to loosen it.
func New(extraDestructive []string) (*Classifier, error) {
	c := &Classifier{}

	for _, p := range append(append([]string{}, destructivePatterns...), extraDestructive...) {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("invalid destructive pattern %q: %w", p, err)
		}
		c.destructive = append(c.destructive, re)
	}

	for _, p := range writePatterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("invalid write pattern %q: %w", p, err)
		}
		c.write = append(c.write, re)
	}

	return c, nil
}

// MustNew builds a classifier with no extra patterns and panics on
// pattern compile failure. The builtin sets are tested, so this is safe
// for package-level use.
func MustNew() *Classifier {
	c, err := New(nil)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify assigns the risk tier for a request. Every string parameter
// value is scanned (command text primarily, but also indirect values
// such as script bodies). Destructive patterns are checked first.
// Empty or unrecognized values classify as read: classification
// fails open, and the policy default fails closed for anything that
// later turns out to be write or destructive.
func (c *Classifier) Classify(req *action.Request) action.Tier {
	values := stringValues(req.Params)

	for _, v := range values {
		for _, re := range c.destructive {
			if re.MatchString(v) {
				return action.TierDestructive
			}
		}
	}

	for _, v := range values {
		for _, re := range c.write {
			if re.MatchString(v) {
				return action.TierWrite
			}
		}
	}

	return action.TierRead
}

// stringValues collects every string value in the parameter map,
// descending into nested maps and string slices.
func stringValues(params map[string]any) []string {
	var values []string
	for _, value := range params {
		switch v := value.(type) {
		case string:
			values = append(values, v)
		case []string:
			values = append(values, v...)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					values = append(values, s)
				}
			}
		case map[string]any:
			values = append(values, stringValues(v)...)
		}
	}
	return values
}
