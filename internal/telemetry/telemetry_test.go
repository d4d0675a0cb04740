package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestShutdowns_ReverseOrderAndJoinedErrors(t *testing.T) {
	var order []string
	var sd shutdowns
	sd.add("first", func(context.Context) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	sd.add("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	err := sd.run(context.Background())
	if strings.Join(order, ",") != "second,first" {
		t.Errorf("order = %v, want reverse registration order", order)
	}
	if err == nil || !strings.Contains(err.Error(), "first: boom") {
		t.Errorf("err = %v, want the named failure", err)
	}
}

func TestSampler(t *testing.T) {
	for _, ratio := range []float64{0, 1, 2} {
		if got := sampler(ratio).Description(); !strings.Contains(got, "AlwaysOnSampler") {
			t.Errorf("sampler(%v) = %s, want always-on", ratio, got)
		}
	}
	if got := sampler(0.25).Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Errorf("sampler(0.25) = %s", got)
	}
}

func TestNewResource_DefaultServiceName(t *testing.T) {
	res, err := newResource("")
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	if !strings.Contains(res.String(), "service.name="+DefaultServiceName) {
		t.Errorf("resource = %s, want service.name=%s", res.String(), DefaultServiceName)
	}
}
