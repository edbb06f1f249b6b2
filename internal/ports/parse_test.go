package ports

import (
	"errors"
	"testing"
)

func fakeLookup(name string) (uint16, error) {
	switch name {
	case "http":
		return 80, nil
	case "netbios-ssn":
		return 139, nil
	}
	return 0, errors.New("unknown service")
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		spec      string
		wantFirst uint16
		wantLast  uint16
		wantErr   bool
	}{
		{"single", "80", 80, 80, false},
		{"dash range", "20-25", 20, 25, false},
		{"colon range", "20:25", 20, 25, false},
		{"open low", "-1024", 1, 1024, false},
		{"open high", "60000:", 60000, 65535, false},
		{"service", "http", 80, 80, false},
		{"service with dash", "netbios-ssn", 139, 139, false},
		{"service range", "http-100", 80, 100, false},
		{"both omitted", "-", 0, 0, true},
		{"colon only", ":", 0, 0, true},
		{"zero", "0", 0, 0, true},
		{"too big", "65536", 0, 0, true},
		{"inverted", "100-20", 0, 0, true},
		{"garbage", "a b", 0, 0, true},
		{"empty", "", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last, err := ParseRange(tt.spec, fakeLookup)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRange(%q) = %d-%d, want error", tt.spec, first, last)
				}
				if !errors.Is(err, ErrInvalidSpec) {
					t.Errorf("error %v does not wrap ErrInvalidSpec", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRange(%q) error: %v", tt.spec, err)
			}
			if first != tt.wantFirst || last != tt.wantLast {
				t.Errorf("ParseRange(%q) = %d-%d, want %d-%d", tt.spec, first, last, tt.wantFirst, tt.wantLast)
			}
		})
	}
}

func TestParsePortWithoutLookup(t *testing.T) {
	if _, err := ParsePort("http", nil); err == nil {
		t.Error("expected service names to be rejected without a lookup")
	}
	if p, err := ParsePort("443", nil); err != nil || p != 443 {
		t.Errorf("ParsePort(443) = %d, %v", p, err)
	}
}

func TestAddSpec(t *testing.T) {
	var s Set
	for _, spec := range []string{"22", "80-81", "82:90"} {
		if err := s.AddSpec(spec, nil); err != nil {
			t.Fatalf("AddSpec(%q): %v", spec, err)
		}
	}
	if s.Count() != 12 {
		t.Errorf("Count() = %d, want 12", s.Count())
	}
	if s.String() != "22,80-90" {
		t.Errorf("String() = %q", s.String())
	}
}
