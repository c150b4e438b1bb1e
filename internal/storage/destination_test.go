package storage

import (
	"context"
	"strings"
	"testing"
)

type stubDest struct{ Destination }

func stubFactory(ctx context.Context, cfg Config) (Destination, error) {
	return stubDest{}, nil
}

func TestRegisterDestinationAndNew(t *testing.T) {
	RegisterDestination("stub_ok", stubFactory)

	d, err := New(context.Background(), Config{Kind: "stub_ok"})
	if err != nil {
		t.Fatalf("New() err=%v, want nil", err)
	}
	if _, ok := d.(stubDest); !ok {
		t.Fatalf("New() returned %T, want stubDest", d)
	}
}

func TestNew_MissingKind(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("New() err=nil, want missing kind error")
	}
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(context.Background(), Config{Kind: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("New() err=%v, want unsupported kind error", err)
	}
}

func TestRegisterDestination_Panics(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Fatalf("%s: expected panic", name)
			}
		}()
		fn()
	}

	mustPanic("empty kind", func() { RegisterDestination("", stubFactory) })
	mustPanic("nil factory", func() { RegisterDestination("stub_nil", nil) })

	RegisterDestination("stub_dup", stubFactory)
	mustPanic("duplicate kind", func() { RegisterDestination("stub_dup", stubFactory) })
}
