package handlers

import "testing"

func TestCronCallAllowed(t *testing.T) {
	tests := []struct {
		name   string
		header string
		secret string
		want   bool
	}{
		{"no secret, no header", "", "", true},
		{"no secret, header present", "Bearer whatever", "", true},
		{"secret set, no header", "", "s3cret", true},
		{"secret set, matching header", "Bearer s3cret", "s3cret", true},
		{"secret set, mismatched header", "Bearer wrong", "s3cret", false},
		{"secret set, bare token match", "s3cret", "s3cret", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cronCallAllowed(tt.header, tt.secret); got != tt.want {
				t.Errorf("cronCallAllowed(%q, %q) = %v, want %v", tt.header, tt.secret, got, tt.want)
			}
		})
	}
}
