package main

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("solmapctl %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestPositionsAtJ2000(t *testing.T) {
	out := execute(t, "positions", "--jd", "2451545")
	if !strings.Contains(out, "2000-01-01T12:00:00Z") {
		t.Errorf("missing epoch header:\n%s", out)
	}
	for _, want := range []string{"Sun", "Earth", "-0.1771", "0.9672", "Pluto"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestApproachMarsOpposition(t *testing.T) {
	out := execute(t, "approach", "Earth", "--bodies", "Mars", "--jd", "2452000", "--horizon", "1000", "--step", "5")
	if !strings.Contains(out, "Mars: 2 approaches") {
		t.Errorf("expected two approaches:\n%s", out)
	}
	if !strings.Contains(out, "2003-08-27") {
		t.Errorf("expected the August 2003 opposition:\n%s", out)
	}
}

func TestTrail(t *testing.T) {
	out := execute(t, "trail", "Mars", "--jd", "2451545", "--days", "10", "--step", "1", "--span", "365")
	if !strings.Contains(out, "Mars: 11 points") {
		t.Errorf("expected 11 points:\n%s", out)
	}
}

func TestUnknownBody(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"approach", "Vulcan", "--jd", "2451545"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestResolveInstant(t *testing.T) {
	tests := []struct {
		name    string
		jd      float64
		ts      string
		want    float64
		wantErr bool
	}{
		{"explicit jd", 2452878.9, "", 2452878.9, false},
		{"rfc3339", 0, "2000-01-01T12:00:00Z", 2451545.0, false},
		{"jd wins", 2451545, "2003-08-27T00:00:00Z", 2451545, false},
		{"bad time", 0, "tomorrow", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveInstant(tt.jd, tt.ts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("jd = %v, want %v", got, tt.want)
			}
		})
	}
}
