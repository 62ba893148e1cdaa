package hvcore

import (
	"context"
	"log/slog"
	"testing"
)

func TestIsProductionEnv(t *testing.T) {
	tests := []struct {
		env, debug string
		want       bool
	}{
		{"", "", false},
		{"production", "", true},
		{"prod", "", true},
		{"staging", "", false},
		{"", "false", true},
		{"", "0", true},
		{"", "true", false},
		{"", "garbage", false},
	}
	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.debug, func(t *testing.T) {
			t.Setenv("HV_ENV", tt.env)
			t.Setenv("HV_DEBUG", tt.debug)
			if got := isProductionEnv(); got != tt.want {
				t.Errorf("isProductionEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	ctx := context.Background()

	t.Setenv("HV_DEBUG", "")
	if defaultLogger().Enabled(ctx, slog.LevelError) {
		t.Error("default logger should discard records")
	}

	t.Setenv("HV_DEBUG", "1")
	if !defaultLogger().Enabled(ctx, slog.LevelDebug) {
		t.Error("HV_DEBUG logger should emit debug records")
	}
}

func TestNewOptionsDefaults(t *testing.T) {
	o := newOptions(nil)
	if o.facility == nil || o.logger == nil {
		t.Fatal("defaults not filled in")
	}
	if o.pageSize == 0 || o.pageSize&(o.pageSize-1) != 0 {
		t.Errorf("pageSize = %d, want a power of two", o.pageSize)
	}

	fac := newFakeFacility()
	o = newOptions([]Option{WithFacility(fac), WithPageSize(0x4000)})
	if o.facility != fac || o.pageSize != 0x4000 {
		t.Errorf("options not applied: %+v", o)
	}
}
