package intake_test

import (
	"errors"
	"testing"

	"linkrelay/internal/intake"
)

func TestParseAcceptsStringAndNumericIdentifiers(t *testing.T) {
	cases := []struct {
		name string
		body string
		want intake.Event
	}{
		{
			name: "strings",
			body: `{"event":"on_after_create","data":{"id":"42","name":" Foo ","humanNumber":"7"}}`,
			want: intake.Event{Type: intake.EventCreate, TaskID: "42", TaskName: "Foo", HumanNumber: "7"},
		},
		{
			name: "numbers",
			body: `{"event":"on_after_create","data":{"id":1000123,"name":"Foo","humanNumber":7}}`,
			want: intake.Event{Type: intake.EventCreate, TaskID: "1000123", TaskName: "Foo", HumanNumber: "7"},
		},
		{
			name: "flags",
			body: `{"event":"on_after_create","data":{"id":"42","name":"Foo","rename":"true","create_again":1}}`,
			want: intake.Event{Type: intake.EventCreate, TaskID: "42", TaskName: "Foo", Rename: true, CreateAgain: true},
		},
		{
			name: "false flags",
			body: `{"event":"on_after_create","data":{"id":"42","name":"Foo","rename":false,"create_again":"0"}}`,
			want: intake.Event{Type: intake.EventCreate, TaskID: "42", TaskName: "Foo"},
		},
		{
			name: "drop without name",
			body: `{"event":"on_after_drop","data":{"id":"42"}}`,
			want: intake.Event{Type: intake.EventDrop, TaskID: "42"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := intake.Parse([]byte(tc.body))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Parse = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"empty", "   ", intake.ErrMalformed},
		{"not json", "event=on_after_create", intake.ErrMalformed},
		{"missing data", `{"event":"on_after_create"}`, intake.ErrInvalid},
		{"missing id", `{"event":"on_after_create","data":{"name":"Foo"}}`, intake.ErrInvalid},
		{"object id", `{"event":"on_after_create","data":{"id":{"x":1}}}`, intake.ErrInvalid},
		{"empty id", `{"event":"on_after_create","data":{"id":""}}`, intake.ErrInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := intake.Parse([]byte(tc.body))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if intake.Classify("on_after_create") != intake.KindCreate {
		t.Fatal("create not recognised")
	}
	if intake.Classify("on_after_drop") != intake.KindDrop {
		t.Fatal("drop not recognised")
	}
	for _, other := range []string{"", "on_after_update", "ON_AFTER_CREATE"} {
		if intake.Classify(other) != intake.KindUnsupported {
			t.Fatalf("expected %q to be unsupported", other)
		}
	}
}
