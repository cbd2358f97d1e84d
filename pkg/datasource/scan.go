package datasource

import "reflect"

// newScanTarget allocates a pointer of the column's scan type so the driver
// can populate it.
func newScanTarget(t reflect.Type) any {
	return reflect.New(t).Interface()
}

// dereference unwraps the pointer created by newScanTarget and normalizes
// byte slices to strings.
func dereference(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		v = rv.Elem().Interface()
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
