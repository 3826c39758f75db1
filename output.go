package main

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// asciiPlot draws a crude vertical bar chart of values scaled to their range.
func asciiPlot(values []float64) {
	const height = 10 // number of text rows
	n := len(values)
	if n == 0 {
		fmt.Println("no data to plot")
		return
	}
	lo, hi := floats.Min(values), floats.Max(values)
	span := hi - lo
	if span == 0 {
		span = 1
	}
	for row := height; row >= 1; row-- {
		threshold := float64(row) / float64(height)
		var sb strings.Builder
		for _, v := range values {
			if (v-lo)/span >= threshold-1e-9 {
				sb.WriteString("█")
			} else {
				sb.WriteByte(' ')
			}
		}
		fmt.Println(sb.String())
	}
	fmt.Println(strings.Repeat("─", n))
	for i := range values {
		if i%5 == 0 {
			fmt.Print(strconv.Itoa(i % 10))
		} else {
			fmt.Print(" ")
		}
	}
	fmt.Printf("  [%.4g, %.4g]\n", lo, hi)
}
