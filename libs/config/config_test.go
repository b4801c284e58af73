package config

import (
	"reflect"
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("PORT", "8086")
	if p, err := Port("PORT", "1"); err != nil || p != "8086" {
		t.Fatalf("Port = %q, %v", p, err)
	}
	t.Setenv("PORT", "99999")
	if _, err := Port("PORT", "1"); err == nil {
		t.Fatal("expected out of range port to fail")
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("DATABASE_URL", "  ")
	if _, err := RequiredString("DATABASE_URL"); err == nil {
		t.Fatal("expected blank value to be rejected")
	}
}

func TestIntAndDuration(t *testing.T) {
	t.Setenv("REDIS_DB", "")
	if n, err := Int("REDIS_DB", 2); err != nil || n != 2 {
		t.Fatalf("Int fallback = %d, %v", n, err)
	}
	t.Setenv("REDIS_DB", "x")
	if _, err := Int("REDIS_DB", 2); err == nil {
		t.Fatal("expected parse error")
	}

	t.Setenv("AVAILABILITY_CACHE_TTL", "90s")
	if d, err := Duration("AVAILABILITY_CACHE_TTL", time.Minute); err != nil || d != 90*time.Second {
		t.Fatalf("Duration = %s, %v", d, err)
	}
	t.Setenv("AVAILABILITY_CACHE_TTL", "-1s")
	if _, err := Duration("AVAILABILITY_CACHE_TTL", time.Minute); err == nil {
		t.Fatal("expected negative duration to fail")
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "off")
	if Bool("OTEL_ENABLED", true) {
		t.Fatal("expected false")
	}
	t.Setenv("OTEL_ENABLED", "maybe")
	if !Bool("OTEL_ENABLED", true) {
		t.Fatal("expected fallback for unknown value")
	}

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example, ,https://b.example ")
	want := []string{"https://a.example", "https://b.example"}
	if got := List("CORS_ALLOWED_ORIGINS"); !reflect.DeepEqual(got, want) {
		t.Fatalf("List = %v", got)
	}
}
