// Command pariodemo runs a small order-preserving parallel pipeline
// over stdin-independent sample data and prints the result alongside
// the elapsed wall-clock time, to make the effect of worker_count and
// max_in_flight visible.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rshape/pario"
)

func main() {
	ctx := context.Background()

	items := make([]int, 30)
	for i := range items {
		items[i] = i
	}
	src := pario.FromSlice(items)

	start := time.Now()

	squared, err := pario.ParallelMap(ctx, src, func(ctx context.Context, x int) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return x * x, nil
	}, pario.WithThreads(6), pario.WithMaxInFlight(6))
	if err != nil {
		fmt.Println("build error:", err)
		return
	}

	odd, err := pario.ParallelFilter(ctx, squared, func(ctx context.Context, x int) bool {
		return x%2 != 0
	}, pario.WithThreads(6), pario.WithMaxInFlight(6))
	if err != nil {
		fmt.Println("build error:", err)
		return
	}

	out, err := pario.ToSlice(ctx, odd)
	if err != nil {
		fmt.Println("error:", err)
	}

	fmt.Println("result:", out)
	fmt.Println("elapsed:", time.Since(start).Round(time.Millisecond))
}
