package order

import (
	"errors"
	"testing"
	"time"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		code      string
		direction Direction
		attribute string
	}{
		{"INI", KeyManagement, AttributeDZNNN},
		{"HIA", KeyManagement, AttributeDZNNN},
		{"HPB", KeyManagement, AttributeDZHNN},
		{"SPR", Upload, AttributeUZHNN},
		{"FUL", Upload, AttributeOZHNN},
		{"FDL", Download, AttributeDZHNN},
		{"C53", Download, AttributeDZHNN},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			d, err := Lookup(tt.code)
			if err != nil {
				t.Fatalf("Lookup(%s) error: %v", tt.code, err)
			}
			if d.Direction != tt.direction {
				t.Errorf("expected direction %s, got %s", tt.direction, d.Direction)
			}
			if d.Attribute != tt.attribute {
				t.Errorf("expected attribute %s, got %s", tt.attribute, d.Attribute)
			}
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("ZZZ")
	if !errors.Is(err, ErrUnknownOrderType) {
		t.Errorf("expected ErrUnknownOrderType, got %v", err)
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Descriptor{Code: "XYZ1", Direction: Upload}); err == nil {
		t.Error("expected error for 4 character code")
	}

	if err := r.Register(Descriptor{Code: "Z01", Direction: Upload}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	d, err := r.Lookup("Z01")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if d.Attribute != AttributeOZHNN {
		t.Errorf("expected default upload attribute, got %s", d.Attribute)
	}

	if err := r.Register(Descriptor{Code: "Z02", Direction: Download}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	d, _ = r.Lookup("Z02")
	if d.Attribute != AttributeDZHNN {
		t.Errorf("expected default download attribute, got %s", d.Attribute)
	}

	if _, err := Lookup("Z01"); err == nil {
		t.Error("registry instances must not share entries")
	}
}

func TestCheckParams(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	tests := []struct {
		name    string
		code    string
		params  Params
		wantErr bool
	}{
		{"INI without params", "INI", Params{}, false},
		{"INI with file format", "INI", Params{FileFormat: "x"}, true},
		{"STA with range", "STA", Params{Start: start, End: end}, false},
		{"STA reversed range", "STA", Params{Start: end, End: start}, true},
		{"STA half range", "STA", Params{Start: start}, true},
		{"STA with file format", "STA", Params{FileFormat: "x"}, true},
		{"FDL requires format", "FDL", Params{}, true},
		{"FDL with format", "FDL", Params{FileFormat: "camt.053.001.02", CountryCode: "FR"}, false},
		{"FDL with format and range", "FDL", Params{FileFormat: "camt.053", Start: start, End: end}, false},
		{"FUL with range", "FUL", Params{FileFormat: "pain.001", Start: start, End: end}, true},
		{"CCT with range", "CCT", Params{Start: start, End: end}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Must(tt.code).CheckParams(tt.params)
			if tt.wantErr && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("expected ErrInvalidParams, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCodes(t *testing.T) {
	codes := NewRegistry().Codes()
	if len(codes) != len(standardOrders) {
		t.Errorf("expected %d codes, got %d", len(standardOrders), len(codes))
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Fatalf("codes not sorted: %v", codes)
		}
	}
}
