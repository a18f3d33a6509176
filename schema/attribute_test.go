package schema_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mickamy/contentorm/schema"
)

func TestCoerce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		attr schema.Attribute
		in   any
		want any
	}{
		{"string from number", schema.Attribute{Type: schema.TypeString}, 12, "12"},
		{"integer from query string", schema.Attribute{Type: schema.TypeInteger}, "42", int64(42)},
		{"integer from json number", schema.Attribute{Type: schema.TypeInteger}, float64(7), int64(7)},
		{"float from string", schema.Attribute{Type: schema.TypeFloat}, "1.5", 1.5},
		{"boolean from string", schema.Attribute{Type: schema.TypeBoolean}, "true", true},
		{"boolean from int", schema.Attribute{Type: schema.TypeBoolean}, int64(0), false},
		{"enumeration", schema.Attribute{Type: schema.TypeEnumeration, Enum: []string{"a", "b"}}, "b", "b"},
		{"date", schema.Attribute{Type: schema.TypeDate}, "2024-03-01T10:00:00Z", "2024-03-01"},
		{"time", schema.Attribute{Type: schema.TypeTime}, "10:30:00", "10:30:00"},
		{"json", schema.Attribute{Type: schema.TypeJSON}, map[string]any{"k": 1}, `{"k":1}`},
		{"nil", schema.Attribute{Type: schema.TypeInteger}, nil, nil},
		{"nil string pointer", schema.Attribute{Type: schema.TypeString}, (*string)(nil), nil},
		{"nil integer pointer", schema.Attribute{Type: schema.TypeInteger}, (*int64)(nil), nil},
		{"string pointer", schema.Attribute{Type: schema.TypeString}, func() *string { s := "x"; return &s }(), "x"},
		{"biginteger from json number", schema.Attribute{Type: schema.TypeBigInteger}, json.Number("9007199254740993"), int64(9007199254740993)},
		{"decimal from json number", schema.Attribute{Type: schema.TypeDecimal}, json.Number("2.25"), 2.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.attr.Coerce(tt.in)
			if err != nil {
				t.Fatalf("Coerce: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Coerce(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCoerceDateTime(t *testing.T) {
	t.Parallel()

	attr := schema.Attribute{Type: schema.TypeDateTime}
	got, err := attr.Coerce("2024-03-01T10:00:00+02:00")
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	want := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if tm, ok := got.(time.Time); !ok || !tm.Equal(want) {
		t.Errorf("Coerce = %v, want %v", got, want)
	}
}

func TestCoerceRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		attr schema.Attribute
		in   any
	}{
		{"integer", schema.Attribute{Name: "views", Type: schema.TypeInteger}, "many"},
		{"boolean", schema.Attribute{Name: "published", Type: schema.TypeBoolean}, "maybe"},
		{"enumeration", schema.Attribute{Name: "status", Type: schema.TypeEnumeration, Enum: []string{"a"}}, "z"},
		{"time", schema.Attribute{Name: "at", Type: schema.TypeTime}, "25:99"},
		{"group", schema.Attribute{Name: "seo", Type: schema.TypeGroup}, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := tt.attr.Coerce(tt.in); !errors.Is(err, schema.ErrInvalidValue) {
				t.Errorf("err = %v, want ErrInvalidValue", err)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		attr schema.Attribute
		in   any
		want any
	}{
		{"bytes to string", schema.Attribute{Type: schema.TypeText}, []byte("hi"), "hi"},
		{"tinyint to bool", schema.Attribute{Type: schema.TypeBoolean}, int64(1), true},
		{"numeric string to float", schema.Attribute{Type: schema.TypeDecimal}, "12.50", 12.5},
		{"json text", schema.Attribute{Type: schema.TypeJSON}, `{"a":[1,2]}`, map[string]any{"a": []any{float64(1), float64(2)}}},
		{"date from time", schema.Attribute{Type: schema.TypeDate}, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "2024-01-02"},
		{"unconvertible kept", schema.Attribute{Type: schema.TypeInteger}, "n/a", "n/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.attr.Decode(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMediaShorthand(t *testing.T) {
	t.Parallel()

	m, err := schema.ParseModel([]byte(`
name: page
attributes:
  hero:
    type: media
  slides:
    collection: file
    plugin: upload
  owner:
    model: file
`), schema.KindContentType)
	if err != nil {
		t.Fatalf("ParseModel: %v", err)
	}

	if a := m.Attribute("hero"); a.Type != schema.TypeMedia || a.Multiple {
		t.Errorf("hero = %s multiple=%v", a.Type, a.Multiple)
	}
	if a := m.Attribute("slides"); a.Type != schema.TypeMedia || !a.Multiple {
		t.Errorf("slides = %s multiple=%v", a.Type, a.Multiple)
	}
	if a := m.Attribute("owner"); a.Type != schema.TypeRelation {
		t.Errorf("owner = %s, want relation", a.Type)
	}
}
