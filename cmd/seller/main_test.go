package main

import (
	"testing"
	"time"
)

func TestParseStock(t *testing.T) {
	stock, err := parseStock("PA=10, PB=5,PC=0")
	if err != nil {
		t.Fatalf("parseStock: %v", err)
	}
	if stock["PA"] != 10 || stock["PB"] != 5 || stock["PC"] != 0 {
		t.Fatalf("unexpected stock: %+v", stock)
	}
}

func TestParseStockRejectsMalformed(t *testing.T) {
	if _, err := parseStock("PA:10"); err == nil {
		t.Fatalf("expected malformed entry error")
	}
	if _, err := parseStock("PA=-1"); err == nil {
		t.Fatalf("expected negative quantity error")
	}
	if _, err := parseStock(""); err == nil {
		t.Fatalf("expected empty stock error")
	}
}

func TestLoadFaults(t *testing.T) {
	t.Setenv("SELLER_DROP_PROB", "0.1")
	t.Setenv("SELLER_UNAVAILABLE_PROB", "0.05")
	t.Setenv("SELLER_LATENCY_MEAN", "150ms")
	t.Setenv("SELLER_LATENCY_STDDEV", "50ms")
	t.Setenv("SELLER_SEED", "42")

	if _, err := loadFaults(); err != nil {
		t.Fatalf("loadFaults: %v", err)
	}
}

func TestLoadFaultsRejectsBadProbability(t *testing.T) {
	t.Setenv("SELLER_DROP_PROB", "2")

	if _, err := loadFaults(); err == nil {
		t.Fatalf("expected probability range error")
	}
}

func TestOptionalDurationRejectsNegative(t *testing.T) {
	t.Setenv("SELLER_LATENCY_MEAN", "-1s")

	if _, err := optionalDuration("SELLER_LATENCY_MEAN"); err == nil {
		t.Fatalf("expected negative duration error")
	}
	t.Setenv("SELLER_LATENCY_MEAN", "")
	if d, err := optionalDuration("SELLER_LATENCY_MEAN"); err != nil || d != time.Duration(0) {
		t.Fatalf("empty value must be zero, got %v %v", d, err)
	}
}
