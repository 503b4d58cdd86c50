package classify

import (
	"testing"

	"flowgate-hq/flowgate/pkg/action"
)

func request(params map[string]any) *action.Request {
	return &action.Request{
		RequestID: "req-1",
		Kind:      "remote-command",
		Env:       action.EnvProd,
		Params:    params,
	}
}

// TestClassify_Commands covers the tier assignment for representative
// command lines, including the boundary between scoped and root-level
// recursive deletes.
func TestClassify_Commands(t *testing.T) {
	c := MustNew()

	tests := []struct {
		name    string
		command string
		want    action.Tier
	}{
		// Read tier
		{"disk usage", "df -h", action.TierRead},
		{"process list", "ps aux", action.TierRead},
		{"log tail", "tail -n 100 /var/log/syslog", action.TierRead},
		{"empty command", "", action.TierRead},

		// Write tier
		{"scoped recursive delete", "rm -rf /tmp/cache", action.TierWrite},
		{"file removal", "rm /etc/nginx/nginx.conf.bak", action.TierWrite},
		{"move", "mv /etc/app.conf /etc/app.conf.old", action.TierWrite},
		{"redirect", "echo ok > /tmp/healthcheck", action.TierWrite},
		{"service stop", "systemctl stop nginx", action.TierWrite},
		{"force kill", "kill -9 4242", action.TierWrite},
		{"pkill", "pkill -f gunicorn", action.TierWrite},
		{"chmod", "chmod 600 /etc/secrets.env", action.TierWrite},
		{"kubectl delete", "kubectl delete pod api-7f9", action.TierWrite},
		{"in-place sed", "sed -i 's/a/b/' /etc/hosts", action.TierWrite},
		{"docker stop", "docker stop api", action.TierWrite},

		// Destructive tier
		{"root recursive delete", "rm -rf /", action.TierDestructive},
		{"root delete with flags", "rm -rf / --no-preserve-root", action.TierDestructive},
		{"format filesystem", "mkfs.ext4 /dev/sdb1", action.TierDestructive},
		{"disk overwrite", "dd if=/dev/zero of=/dev/sda", action.TierDestructive},
		{"shutdown", "shutdown -h now", action.TierDestructive},
		{"reboot", "systemctl reboot", action.TierDestructive},
		{"init 0", "init 0", action.TierDestructive},
		{"wipefs", "wipefs -a /dev/sdb", action.TierDestructive},
		{"raw device write", "cat image.img > /dev/sdb", action.TierDestructive},
		{"case insensitive", "SHUTDOWN -h now", action.TierDestructive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(request(map[string]any{"command": tt.command}))
			if got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.command, got, tt.want)
			}
		})
	}
}

// TestClassify_DestructiveWinsOverWrite checks precedence when a command
// matches both keyword sets.
func TestClassify_DestructiveWinsOverWrite(t *testing.T) {
	c := MustNew()

	// "rm -rf /" matches the write pattern for rm and the destructive
	// root-delete pattern; destructive must win.
	got := c.Classify(request(map[string]any{"command": "rm -rf /"}))
	if got != action.TierDestructive {
		t.Errorf("Classify = %s, want destructive", got)
	}
}

// TestClassify_ScansAllParams verifies that non-command parameters are
// also inspected.
func TestClassify_ScansAllParams(t *testing.T) {
	c := MustNew()

	tests := []struct {
		name   string
		params map[string]any
		want   action.Tier
	}{
		{
			name:   "script body parameter",
			params: map[string]any{"script": "#!/bin/sh\nmkfs.ext4 /dev/sdc1\n"},
			want:   action.TierDestructive,
		},
		{
			name:   "nested map",
			params: map[string]any{"steps": map[string]any{"cleanup": "rm -r /opt/app/tmp"}},
			want:   action.TierWrite,
		},
		{
			name:   "string slice",
			params: map[string]any{"commands": []string{"uptime", "systemctl stop cron"}},
			want:   action.TierWrite,
		},
		{
			name:   "non-string params only",
			params: map[string]any{"count": 5, "dry_run": true},
			want:   action.TierRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(request(tt.params)); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestClassify_Deterministic runs the same input repeatedly and expects
// an identical tier each time.
func TestClassify_Deterministic(t *testing.T) {
	c := MustNew()
	req := request(map[string]any{
		"command": "rm -rf /tmp/cache",
		"host":    "prod-api-3",
		"extra":   map[string]any{"note": "nightly cleanup"},
	})

	first := c.Classify(req)
	for i := 0; i < 100; i++ {
		if got := c.Classify(req); got != first {
			t.Fatalf("iteration %d: Classify = %s, want %s", i, got, first)
		}
	}
}

// TestNew_ExtraPatterns verifies config-supplied destructive patterns are
// honored, and invalid patterns are rejected.
func TestNew_ExtraPatterns(t *testing.T) {
	c, err := New([]string{`terraform\s+destroy`})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got := c.Classify(request(map[string]any{"command": "terraform destroy -auto-approve"}))
	if got != action.TierDestructive {
		t.Errorf("Classify = %s, want destructive for extra pattern", got)
	}

	if _, err := New([]string{`([`}); err == nil {
		t.Error("New() with invalid pattern should fail")
	}
}
