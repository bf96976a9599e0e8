// Package control implements the per-tick admission-control recurrence.
//
// The loop is built from three parts:
//
//   - [PD]: proportional-derivative law on the tracking error
//   - [RateLimiter]: saturating throttle factor in [0, 1]
//   - [Plant]: first-order output recurrence driven by admitted traffic
//     and the perturbation sample
//
// # Usage
//
//	loop := control.NewLoop(cfg)
//	for kt := 1; kt < buf.Len(); kt++ {
//		s, err := loop.Step(buf, kt)
//		...
//	}
//
// [Loop.Step] reads index kt-1 and the precomputed inputs at kt, and
// writes every derived series at kt.
package control
