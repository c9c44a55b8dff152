// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import "testing"

func TestLossPercent(t *testing.T) {
	tests := []struct {
		name   string
		failed int
		sent   int
		want   float64
	}{
		{"no reads sent", 0, 0, 0},
		{"all responses received", 0, 3, 0},
		{"one of four lost", 1, 4, 25},
		{"all lost", 3, 3, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lossPercent(tt.failed, tt.sent); got != tt.want {
				t.Errorf("lossPercent(%d, %d) = %v, want %v", tt.failed, tt.sent, got, tt.want)
			}
		})
	}
}
