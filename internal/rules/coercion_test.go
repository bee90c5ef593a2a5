package rules

import (
	"encoding/json"
	"testing"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   float64
		wantOK bool
	}{
		{name: "float64", value: 42.5, want: 42.5, wantOK: true},
		{name: "int", value: 100, want: 100, wantOK: true},
		{name: "int64", value: int64(999), want: 999, wantOK: true},
		{name: "uint8", value: uint8(7), want: 7, wantOK: true},
		{name: "json.Number", value: json.Number("3.5"), want: 3.5, wantOK: true},
		{name: "numeric string rejected", value: "25", wantOK: false},
		{name: "boolean rejected", value: true, wantOK: false},
		{name: "nil rejected", value: nil, wantOK: false},
		{name: "slice rejected", value: []any{1}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toFloat64(tt.value)
			if ok != tt.wantOK {
				t.Fatalf("toFloat64(%v) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("toFloat64(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestCompareEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{name: "int and float", a: 5, b: 5.0, want: true},
		{name: "strings", a: "uk", b: "uk", want: true},
		{name: "string vs number", a: "5", b: 5, want: false},
		{name: "number vs string", a: 5, b: "5", want: false},
		{name: "bool vs number", a: true, b: 1, want: false},
		{name: "nil vs nil", a: nil, b: nil, want: true},
		{name: "slices", a: []any{"a", 1.0}, b: []any{"a", 1.0}, want: true},
		{name: "maps", a: map[string]any{"k": "v"}, b: map[string]any{"k": "v"}, want: true},
		{name: "slice vs scalar", a: []any{"a"}, b: "a", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compareEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("compareEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAsSequence(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantLen int
		wantOK  bool
	}{
		{name: "[]any", value: []any{"a", "b"}, wantLen: 2, wantOK: true},
		{name: "[]string", value: []string{"a"}, wantLen: 1, wantOK: true},
		{name: "array", value: [3]int{1, 2, 3}, wantLen: 3, wantOK: true},
		{name: "empty slice", value: []any{}, wantLen: 0, wantOK: true},
		{name: "string", value: "abc", wantOK: false},
		{name: "map", value: map[string]any{}, wantOK: false},
		{name: "nil", value: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := asSequence(tt.value)
			if ok != tt.wantOK {
				t.Fatalf("asSequence(%v) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if ok && len(got) != tt.wantLen {
				t.Errorf("asSequence(%v) len = %d, want %d", tt.value, len(got), tt.wantLen)
			}
		})
	}
}
