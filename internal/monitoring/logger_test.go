package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("hello %d")
	if got != "hello %d" {
		t.Errorf("custom logger not invoked, got %q", got)
	}

	// nil installs a no-op logger rather than leaving Logf nil
	called := false
	SetLogger(func(string, ...interface{}) { called = true })
	SetLogger(nil)
	Logf("dropped")
	if called {
		t.Error("no-op logger invoked previous callback")
	}
	if Logf == nil {
		t.Error("Logf is nil after SetLogger(nil)")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should default to a usable logger")
	}
}
