package llm

import (
	"context"
	"errors"
	"slices"
	"testing"

	"interrogation/config"
)

func TestRegistry(t *testing.T) {
	var gotCfg config.Inference
	Register(func(ctx context.Context, cfg config.Inference) (Backend, error) {
		gotCfg = cfg
		return &fakeBackend{}, nil
	}, "registry-test-a", "registry-test-b")

	for _, name := range []string{"registry-test-a", "registry-test-b"} {
		if !slices.Contains(Services(), name) {
			t.Errorf("Services() missing %q", name)
		}
	}

	cfg := config.Inference{Service: "registry-test-b", Model: "m"}
	backend, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if backend == nil || gotCfg.Model != "m" {
		t.Errorf("factory not called with config: %+v", gotCfg)
	}

	_, err = New(context.Background(), config.Inference{Service: "carrier-pigeon"})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("New(unknown) error = %v, want ErrUnknownBackend", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	factory := func(ctx context.Context, cfg config.Inference) (Backend, error) { return nil, nil }
	Register(factory, "registry-test-dup")

	defer func() {
		if recover() == nil {
			t.Error("second Register for the same service should panic")
		}
	}()
	Register(factory, "registry-test-dup")
}
