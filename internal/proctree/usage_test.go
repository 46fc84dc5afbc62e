package proctree

import (
	"os"
	"strings"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{250 * 1024 * 1024, "250.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTreeUsageSelf(t *testing.T) {
	u, err := TreeUsage(os.Getpid())
	if err != nil {
		t.Skipf("process information unavailable: %v", err)
	}
	if u.Processes < 1 || u.RSS == 0 {
		t.Errorf("TreeUsage() = %+v", u)
	}
	if !strings.Contains(u.String(), "MEM") {
		t.Errorf("String() = %q", u.String())
	}
}
