package zds

import "testing"

func TestShapeHashStableAcrossFieldOrder(t *testing.T) {
	a := map[string]any{"name": "bolt", "qty": float64(3)}
	b := map[string]any{"qty": float64(9), "name": "nut"}
	if shapeHash(a) != shapeHash(b) {
		t.Errorf("expected shape hash to ignore field order and value, only kind")
	}
}

func TestShapeHashDiffersOnFieldSet(t *testing.T) {
	a := map[string]any{"name": "bolt"}
	b := map[string]any{"name": "bolt", "qty": float64(3)}
	if shapeHash(a) == shapeHash(b) {
		t.Errorf("expected different shape hash for different field sets")
	}
}

func TestShapeHashDiffersOnKind(t *testing.T) {
	a := map[string]any{"qty": float64(3)}
	b := map[string]any{"qty": "three"}
	if shapeHash(a) == shapeHash(b) {
		t.Errorf("expected different shape hash when a field's kind changes")
	}
}

func TestShapeHashIgnoresID(t *testing.T) {
	a := map[string]any{"_id": "one", "name": "bolt"}
	b := map[string]any{"_id": "two", "name": "bolt"}
	if shapeHash(a) != shapeHash(b) {
		t.Errorf("expected _id to be excluded from shape comparison")
	}
}

func TestShapeHashRecursesIntoNestedObjects(t *testing.T) {
	a := map[string]any{"meta": map[string]any{"x": float64(1)}}
	b := map[string]any{"meta": map[string]any{"x": "one"}}
	if shapeHash(a) == shapeHash(b) {
		t.Errorf("expected a nested field's kind change to change the shape hash")
	}
}

func TestShapeHashRecursesIntoArrayElements(t *testing.T) {
	a := map[string]any{"tags": []any{float64(1), float64(2)}}
	b := map[string]any{"tags": []any{"one", "two"}}
	if shapeHash(a) == shapeHash(b) {
		t.Errorf("expected an array element's kind change to change the shape hash")
	}
}

func TestShapeHashSameNestedShapeMatches(t *testing.T) {
	a := map[string]any{"meta": map[string]any{"x": float64(1), "y": "a"}}
	b := map[string]any{"meta": map[string]any{"y": "b", "x": float64(2)}}
	if shapeHash(a) != shapeHash(b) {
		t.Errorf("expected identical nested shapes (different order/values) to hash the same")
	}
}
