package domain

import "fmt"

// Checked conversions for inbound payload values.
//
// Bridge payloads are dynamically typed (decoded JSON), and implicit
// numeric coercion has historically produced ambiguous results at the
// host boundary. Every conversion is explicit: a value either has a
// supported concrete type or the conversion fails with a descriptive
// error. Strings are never silently parsed into numbers.

// AsFloat converts a payload value to float64.
func AsFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

// AsInt converts a payload value to int. JSON numbers arrive as float64;
// only whole values convert.
func AsInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("expected whole number, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// AsString converts a payload value to string.
func AsString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

// AsPoint converts a payload value to a Point3D. Accepted shapes are a
// Point3D, a map with x/y/z keys, or a 3-element slice.
func AsPoint(v any) (Point3D, error) {
	switch p := v.(type) {
	case Point3D:
		return p, nil
	case map[string]any:
		var pt Point3D
		var err error
		if pt.X, err = AsFloat(p["x"]); err != nil {
			return Point3D{}, fmt.Errorf("point x: %w", err)
		}
		if pt.Y, err = AsFloat(p["y"]); err != nil {
			return Point3D{}, fmt.Errorf("point y: %w", err)
		}
		if pt.Z, err = AsFloat(p["z"]); err != nil {
			return Point3D{}, fmt.Errorf("point z: %w", err)
		}
		return pt, nil
	case []any:
		if len(p) != 3 {
			return Point3D{}, fmt.Errorf("expected 3 coordinates, got %d", len(p))
		}
		var pt Point3D
		var err error
		if pt.X, err = AsFloat(p[0]); err != nil {
			return Point3D{}, fmt.Errorf("point x: %w", err)
		}
		if pt.Y, err = AsFloat(p[1]); err != nil {
			return Point3D{}, fmt.Errorf("point y: %w", err)
		}
		if pt.Z, err = AsFloat(p[2]); err != nil {
			return Point3D{}, fmt.Errorf("point z: %w", err)
		}
		return pt, nil
	default:
		return Point3D{}, fmt.Errorf("expected point, got %T", v)
	}
}
