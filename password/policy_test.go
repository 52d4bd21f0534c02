package password

import "testing"

func TestPolicyDefaultsOnlyLength(t *testing.T) {
	p := Policy{MinLength: 6}

	if reasons := p.Check("abcdef"); len(reasons) != 0 {
		t.Fatalf("expected no reasons, got %v", reasons)
	}
	reasons := p.Check("abc")
	if len(reasons) != 1 {
		t.Fatalf("expected one reason, got %v", reasons)
	}
	if reasons[0] != "must be at least 6 characters" {
		t.Fatalf("unexpected reason %q", reasons[0])
	}
}

func TestPolicyCountsRunesNotBytes(t *testing.T) {
	p := Policy{MinLength: 6}
	if reasons := p.Check("éééééé"); len(reasons) != 0 {
		t.Fatalf("six runes must pass, got %v", reasons)
	}
}

func TestPolicyCompositionRules(t *testing.T) {
	p := Policy{
		MinLength:              8,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	}

	tests := []struct {
		name     string
		password string
		want     int
	}{
		{"all rules satisfied", "Abcdef1!", 0},
		{"missing digit", "Abcdefg!", 1},
		{"missing upper", "abcdef1!", 1},
		{"missing lower", "ABCDEF1!", 1},
		{"missing special", "Abcdefg1", 1},
		{"short and plain", "abc", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Check(tt.password); len(got) != tt.want {
				t.Fatalf("Check(%q) = %v, want %d reasons", tt.password, got, tt.want)
			}
		})
	}
}
