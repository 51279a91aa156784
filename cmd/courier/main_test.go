package main

import "testing"

func TestBuildServeCmd_Flags(t *testing.T) {
	cmd := buildServeCmd()
	if cmd.Use != "serve" {
		t.Errorf("Use = %q", cmd.Use)
	}
	for _, name := range []string{"config", "debug"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag %q not registered", name)
		}
	}
	if got := cmd.Flags().Lookup("config").DefValue; got != "courier.yaml" {
		t.Errorf("config default = %q", got)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("COURIER_TEST_KEY", "from-env")
	if got := envOr("COURIER_TEST_KEY", "fallback"); got != "from-env" {
		t.Errorf("envOr = %q", got)
	}
	if got := envOr("COURIER_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("envOr fallback = %q", got)
	}
}
