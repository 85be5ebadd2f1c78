package validation

import (
	"encoding/json"
	"testing"
)

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"present", "clients", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequired("collection", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequired(%q) = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEnum(t *testing.T) {
	allowed := []string{"insert", "update", "delete"}

	if err := ValidateEnum("type", "update", allowed); err != nil {
		t.Errorf("ValidateEnum(update) = %v, want nil", err)
	}

	err := ValidateEnum("type", "upsert", allowed)
	if err == nil {
		t.Fatal("ValidateEnum(upsert) = nil, want error")
	}
	if err.Field != "type" {
		t.Errorf("error.Field = %q, want %q", err.Field, "type")
	}
}

func TestValidateMaxLength(t *testing.T) {
	if err := ValidateMaxLength("name", "Ana", 10); err != nil {
		t.Errorf("within limit = %v, want nil", err)
	}
	// Rune count, not byte count.
	if err := ValidateMaxLength("name", "世界世界世", 5); err != nil {
		t.Errorf("5 runes within limit 5 = %v, want nil", err)
	}
	if err := ValidateMaxLength("name", "abcdef", 5); err == nil {
		t.Error("over limit = nil, want error")
	}
}

func TestValidateUTF8(t *testing.T) {
	if err := ValidateUTF8("notes", "Hello, 世界"); err != nil {
		t.Errorf("valid utf-8 = %v, want nil", err)
	}
	if err := ValidateUTF8("notes", string([]byte{0xff, 0xfe})); err == nil {
		t.Error("invalid utf-8 = nil, want error")
	}
}

func TestValidateULID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid", "01HQXW5P8ZJQK3R9T2V4M6N8B0", false},
		{"lowercase accepted", "01hqxw5p8zjqk3r9t2v4m6n8b0", false},
		{"too short", "01HQXW5P8Z", true},
		{"excluded letter", "01HQXW5P8ZJQK3R9T2V4M6N8BI", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateULID("target_id", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateULID(%q) = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDate(t *testing.T) {
	if err := ValidateDate("scheduled_date", "2026-03-15"); err != nil {
		t.Errorf("valid date = %v, want nil", err)
	}
	for _, bad := range []string{"15/03/2026", "2026-13-01", "2026-03-15T10:00:00Z", ""} {
		if err := ValidateDate("scheduled_date", bad); err == nil {
			t.Errorf("ValidateDate(%q) = nil, want error", bad)
		}
	}
}

func TestValidateJSONObject(t *testing.T) {
	if err := ValidateJSONObject("payload", json.RawMessage(`{"name":"Ana"}`)); err != nil {
		t.Errorf("object payload = %v, want nil", err)
	}
	for _, bad := range []string{`[1,2]`, `"str"`, `42`, `not json`} {
		if err := ValidateJSONObject("payload", json.RawMessage(bad)); err == nil {
			t.Errorf("ValidateJSONObject(%s) = nil, want error", bad)
		}
	}
	if err := ValidateJSONObject("payload", nil); err == nil {
		t.Error("nil payload = nil, want error")
	}
}

func TestCollector(t *testing.T) {
	var c Collector
	if c.HasErrors() {
		t.Error("fresh collector reports errors")
	}

	c.Add(nil)
	if c.HasErrors() {
		t.Error("nil add must not register an error")
	}

	c.Add(ValidateRequired("collection", ""))
	c.Add(ValidateEnum("type", "bad", []string{"insert"}))
	if got := len(c.Errors()); got != 2 {
		t.Errorf("expected 2 accumulated errors, got %d", got)
	}
}
