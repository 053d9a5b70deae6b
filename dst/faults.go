/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package dst

import "fmt"

// SweepConfigs runs cfg.MaxOperations-sized harness runs for every seed
// in [0, seeds), returning the first failing Result encountered (or nil
// if every seed converged) — the "for seed in 0..100" loop the original
// harness runs as its top-level entry point.
func SweepConfigs(base Config, seeds uint64, mk func(seed uint64) Config) *Result {
	for seed := uint64(0); seed < seeds; seed++ {
		cfg := mk(seed)
		h := NewHarness(cfg)
		res := h.Run(cfg.MaxOperations)
		if !res.IsSuccess() {
			failed := res
			return &failed
		}
	}
	return nil
}

// FaultReport renders a one-line description of a configuration's fault
// profile, for logging which preset a sweep is currently exercising.
func FaultReport(cfg Config) string {
	return fmt.Sprintf("replicas=%d drop_prob=%.2f partition_prob=%.2f max_ops=%d",
		cfg.NumReplicas, cfg.MessageDropProb, cfg.PartitionProb, cfg.MaxOperations)
}
