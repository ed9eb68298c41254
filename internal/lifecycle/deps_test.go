package lifecycle

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Bigsy/mcpherd/internal/protocol"
)

func TestStartOrder_Chain(t *testing.T) {
	graph := map[string][]string{
		"api":   {"db"},
		"db":    nil,
		"front": {"api"},
	}
	order, err := startOrder(graph)
	if err != nil {
		t.Fatalf("startOrder: %v", err)
	}
	want := []string{"db", "api", "front"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestStartOrder_TiesBreakAlphabetically(t *testing.T) {
	graph := map[string][]string{
		"zeta":  nil,
		"alpha": nil,
		"mid":   {"zeta"},
	}
	order, err := startOrder(graph)
	if err != nil {
		t.Fatalf("startOrder: %v", err)
	}
	want := []string{"alpha", "zeta", "mid"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestStartOrder_SharedDependency(t *testing.T) {
	graph := map[string][]string{
		"db": nil,
		"a":  {"db"},
		"b":  {"db"},
	}
	order, err := startOrder(graph)
	if err != nil {
		t.Fatalf("startOrder: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	if pos["db"] > pos["a"] || pos["db"] > pos["b"] {
		t.Errorf("db must come before its dependents: %v", order)
	}
}

func TestStartOrder_UnknownDependency(t *testing.T) {
	graph := map[string][]string{
		"api": {"ghost"},
	}
	_, err := startOrder(graph)
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
	var pe *protocol.Error
	if !errors.As(err, &pe) || pe.Code != protocol.CodeConfigError {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestStartOrder_Cycle(t *testing.T) {
	graph := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}
	_, err := startOrder(graph)
	if err == nil {
		t.Fatal("expected error for cycle")
	}
	var pe *protocol.Error
	if !errors.As(err, &pe) || pe.Code != protocol.CodeConfigError {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestStopOrder_ReversesStartOrder(t *testing.T) {
	graph := map[string][]string{
		"api":   {"db"},
		"db":    nil,
		"front": {"api"},
	}
	order, err := stopOrder(graph)
	if err != nil {
		t.Fatalf("stopOrder: %v", err)
	}
	want := []string{"front", "api", "db"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}
